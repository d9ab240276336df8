package physics

import "math"

// GroundTag identifies the ground plane in contact events.
const GroundTag = "Ground"

const (
	defaultGravity         = 9.81
	defaultRestitution     = 0.45
	defaultImpactFriction  = 0.1
	defaultRollingFriction = 0.6
	restingSpeed           = 0.05
)

// Contact reports a body entering contact with a tagged surface.
type Contact struct {
	BodyID int
	Tag    string
	Point  Vec3
}

// Listener receives per-step callbacks for a body. OnPhysicsStep runs before
// integration; OnGroundContact runs after the collision response for every
// surface the body starts touching.
type Listener interface {
	OnPhysicsStep(dt float64)
	OnGroundContact(contact Contact)
}

// Collider is an axis-aligned trigger volume with a tag.
type Collider struct {
	Tag string
	Min Vec3
	Max Vec3
}

func (c Collider) touches(centre Vec3, radius float64) bool {
	//1.- Clamp the centre into the box and compare the gap against the radius.
	closest := Vec3{
		X: math.Max(c.Min.X, math.Min(centre.X, c.Max.X)),
		Y: math.Max(c.Min.Y, math.Min(centre.Y, c.Max.Y)),
		Z: math.Max(c.Min.Z, math.Min(centre.Z, c.Max.Z)),
	}
	return closest.Distance(centre) <= radius
}

// World integrates bodies under gravity with a single ground plane at y=0.
type World struct {
	gravity         float64
	groundY         float64
	restitution     float64
	impactFriction  float64
	rollingFriction float64
	colliders       []Collider
	bodies          []*Body
	listeners       map[int]Listener
	steps           uint64
}

// WorldOption configures optional world parameters at construction time.
type WorldOption func(*World)

// WithGravity overrides the downward acceleration magnitude.
func WithGravity(g float64) WorldOption {
	return func(w *World) {
		if g >= 0 {
			w.gravity = g
		}
	}
}

// WithRestitution overrides the bounce coefficient applied at ground impacts.
func WithRestitution(e float64) WorldOption {
	return func(w *World) {
		if e >= 0 && e <= 1 {
			w.restitution = e
		}
	}
}

// WithCollider registers a tagged trigger volume.
func WithCollider(c Collider) WorldOption {
	return func(w *World) {
		w.colliders = append(w.colliders, c)
	}
}

// NewWorld constructs an empty world.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		gravity:         defaultGravity,
		restitution:     defaultRestitution,
		impactFriction:  defaultImpactFriction,
		rollingFriction: defaultRollingFriction,
		listeners:       make(map[int]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Gravity returns the configured gravity magnitude.
func (w *World) Gravity() float64 { return w.gravity }

// Steps returns how many fixed steps have been integrated.
func (w *World) Steps() uint64 { return w.steps }

// AddBody creates an inactive body owned by the world.
func (w *World) AddBody(radius float64) *Body {
	body := newBody(len(w.bodies), radius)
	w.bodies = append(w.bodies, body)
	return body
}

// Bodies returns every body in creation order.
func (w *World) Bodies() []*Body {
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// Attach routes step and contact callbacks for the body to the listener.
func (w *World) Attach(body *Body, listener Listener) {
	if body == nil {
		return
	}
	if listener == nil {
		delete(w.listeners, body.id)
		return
	}
	w.listeners[body.id] = listener
}

// Step advances every active body by dt seconds.
func (w *World) Step(dt float64) {
	if !(dt > 0) {
		return
	}
	w.steps++
	for _, body := range w.bodies {
		if !body.active {
			continue
		}
		listener := w.listeners[body.id]
		//1.- Let the owner push forces for this step.
		if listener != nil {
			listener.OnPhysicsStep(dt)
		}
		//2.- Integrate velocity then position (semi-implicit Euler).
		w.integrate(body, dt)
		//3.- Resolve the ground and triggers, collecting new contacts.
		contacts := w.collide(body)
		if listener == nil {
			continue
		}
		for _, contact := range contacts {
			listener.OnGroundContact(contact)
			if !body.active {
				break
			}
		}
	}
}

func (w *World) integrate(body *Body, dt float64) {
	accel := body.acceleration.Add(Vec3{Y: -w.gravity})
	body.acceleration = Vec3{}
	body.velocity = body.velocity.Add(accel.Scale(dt))
	if body.grounded {
		//1.- Bleed horizontal speed while rolling along the ground.
		damp := math.Max(0, 1-w.rollingFriction*dt)
		body.velocity.X *= damp
		body.velocity.Z *= damp
	}
	body.position = body.position.Add(body.velocity.Scale(dt))

	o := body.orientation
	o.YawDeg = wrapAngleDeg(o.YawDeg + body.angularVelocity.Y*dt)
	o.PitchDeg = wrapAngleDeg(o.PitchDeg + body.angularVelocity.X*dt)
	o.RollDeg = wrapAngleDeg(o.RollDeg + body.angularVelocity.Z*dt)
	body.orientation = o
}

func (w *World) collide(body *Body) []Contact {
	var contacts []Contact
	floor := w.groundY + body.radius
	if body.position.Y <= floor {
		body.position.Y = floor
		if !body.grounded {
			//1.- Entering contact: reflect the vertical speed and report the impact.
			body.grounded = true
			if body.velocity.Y < 0 {
				body.velocity.Y = -body.velocity.Y * w.restitution
				body.velocity.X *= 1 - w.impactFriction
				body.velocity.Z *= 1 - w.impactFriction
			}
			contacts = append(contacts, Contact{BodyID: body.id, Tag: GroundTag, Point: Vec3{X: body.position.X, Y: w.groundY, Z: body.position.Z}})
		} else if body.velocity.Y < 0 {
			body.velocity.Y = 0
		}
		if body.velocity.Y > restingSpeed {
			//2.- Bounced clear: the next descent counts as a new contact.
			body.grounded = false
		} else if body.velocity.Y > 0 {
			body.velocity.Y = 0
		}
	} else {
		body.grounded = false
	}

	for _, collider := range w.colliders {
		inside := collider.touches(body.position, body.radius)
		was := body.touching[collider.Tag]
		if inside && !was {
			contacts = append(contacts, Contact{BodyID: body.id, Tag: collider.Tag, Point: body.position})
		}
		if inside {
			body.touching[collider.Tag] = true
		} else {
			delete(body.touching, collider.Tag)
		}
	}
	return contacts
}
