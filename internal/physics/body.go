package physics

// Body is a sphere integrated by the World. Angular velocity is expressed in
// degrees per second about each local axis.
type Body struct {
	id              int
	radius          float64
	active          bool
	position        Vec3
	velocity        Vec3
	angularVelocity Vec3
	orientation     Orientation
	acceleration    Vec3
	grounded        bool
	touching        map[string]bool
}

func newBody(id int, radius float64) *Body {
	if radius < 0 {
		radius = 0
	}
	return &Body{id: id, radius: radius, touching: make(map[string]bool)}
}

// NewBody constructs a detached body, useful for tests that drive a listener by hand.
func NewBody(id int, radius float64) *Body { return newBody(id, radius) }

// ID returns the identifier assigned when the body was created.
func (b *Body) ID() int { return b.id }

// Radius returns the contact radius.
func (b *Body) Radius() float64 { return b.radius }

// Active reports whether the world integrates the body.
func (b *Body) Active() bool { return b.active }

// SetActive toggles integration and collision for the body.
func (b *Body) SetActive(active bool) {
	b.active = active
	if !active {
		//1.- Inactive bodies forget contact history so re-activation reports fresh contacts.
		b.clearContacts()
	}
}

// Position returns the world-space centre.
func (b *Body) Position() Vec3 { return b.position }

// SetPosition teleports the body and clears contact history.
func (b *Body) SetPosition(p Vec3) {
	b.position = p
	b.clearContacts()
}

// Velocity returns the linear velocity.
func (b *Body) Velocity() Vec3 { return b.velocity }

// SetVelocity replaces the linear velocity.
func (b *Body) SetVelocity(v Vec3) { b.velocity = v }

// AngularVelocity returns the angular velocity in degrees per second.
func (b *Body) AngularVelocity() Vec3 { return b.angularVelocity }

// SetAngularVelocity replaces the angular velocity.
func (b *Body) SetAngularVelocity(v Vec3) { b.angularVelocity = v }

// Orientation returns the current rotation.
func (b *Body) Orientation() Orientation { return b.orientation }

// SetOrientation replaces the current rotation.
func (b *Body) SetOrientation(o Orientation) { b.orientation = o }

// Right returns the body's lateral axis in world space.
func (b *Body) Right() Vec3 { return b.orientation.Right() }

// AddAcceleration accumulates a mass-independent force for the next step.
func (b *Body) AddAcceleration(a Vec3) { b.acceleration = b.acceleration.Add(a) }

// PendingAcceleration exposes the accumulated acceleration before integration.
func (b *Body) PendingAcceleration() Vec3 { return b.acceleration }

// Grounded reports whether the body rests on or touches the ground plane.
func (b *Body) Grounded() bool { return b.grounded }

func (b *Body) clearContacts() {
	b.grounded = false
	for tag := range b.touching {
		delete(b.touching, tag)
	}
}
