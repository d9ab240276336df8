package ball

import (
	"time"

	"swingspin/bowler/internal/delivery"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/schedule"
)

// DefaultExpiry is how long a launched ball stays visible before retirement.
const DefaultExpiry = 8 * time.Second

// Body is the slice of the host rigid body the force model drives.
type Body interface {
	Position() physics.Vec3
	SetPosition(physics.Vec3)
	Velocity() physics.Vec3
	SetVelocity(physics.Vec3)
	SetAngularVelocity(physics.Vec3)
	SetOrientation(physics.Orientation)
	Right() physics.Vec3
	AddAcceleration(physics.Vec3)
	Active() bool
	SetActive(bool)
}

// LandFunc observes the first ground contact of a delivery.
type LandFunc func(b *Ball, contact physics.Contact, before, after physics.Vec3)

// RetireFunc observes a ball being retired by its expiry timer.
type RetireFunc func(b *Ball)

// Ball is the per-delivery projectile state wrapped around a pooled body.
type Ball struct {
	id        int
	body      Body
	scheduler *schedule.Scheduler
	expiry    time.Duration
	onLand    LandFunc
	onRetire  RetireFunc

	params  delivery.Parameters
	landed  bool
	expires *schedule.Handle
}

// Option configures optional ball behaviour at construction time.
type Option func(*Ball)

// WithExpiry overrides DefaultExpiry.
func WithExpiry(d time.Duration) Option {
	return func(b *Ball) {
		if d > 0 {
			b.expiry = d
		}
	}
}

// WithLandFunc registers the first-bounce observer.
func WithLandFunc(fn LandFunc) Option {
	return func(b *Ball) { b.onLand = fn }
}

// WithRetireFunc registers the retirement observer. When set, the observer owns
// hiding the ball; otherwise the ball deactivates its own body.
func WithRetireFunc(fn RetireFunc) Option {
	return func(b *Ball) { b.onRetire = fn }
}

// New wraps body. The scheduler drives the expiry countdown.
func New(id int, body Body, scheduler *schedule.Scheduler, opts ...Option) *Ball {
	b := &Ball{id: id, body: body, scheduler: scheduler, expiry: DefaultExpiry}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// ID returns the pool slot identifier.
func (b *Ball) ID() int { return b.id }

// Body exposes the wrapped rigid body.
func (b *Ball) Body() Body { return b.body }

// Parameters returns the launch parameters of the current delivery.
func (b *Ball) Parameters() delivery.Parameters { return b.params }

// Landed reports whether the current delivery has touched the ground.
func (b *Ball) Landed() bool { return b.landed }

// ExpiryPending reports whether the retirement countdown is armed.
func (b *Ball) ExpiryPending() bool { return b.expires.Pending() }

// Place moves the body to a release position.
func (b *Ball) Place(position physics.Vec3) { b.body.SetPosition(position) }

// SetVisible shows or hides the ball.
func (b *Ball) SetVisible(visible bool) { b.body.SetActive(visible) }

// Visible reports whether the body is active in the world.
func (b *Ball) Visible() bool { return b.body.Active() }

// Reset kills every trace of the previous delivery so the ball can be relaunched.
func (b *Ball) Reset() {
	//1.- Clear the one-shot flag and parameters so no stale force survives.
	b.landed = false
	b.params = delivery.Parameters{}
	//2.- Zero motion and orientation so the lateral axis is consistent between throws.
	b.body.SetVelocity(physics.Vec3{})
	b.body.SetAngularVelocity(physics.Vec3{})
	b.body.SetOrientation(physics.Identity)
	b.body.SetActive(true)
	//3.- Cancel any retirement still pending from an earlier throw.
	b.expires.Cancel()
	b.expires = nil
}

// Launch sets the planned launch velocity.
func (b *Ball) Launch(velocity physics.Vec3) { b.body.SetVelocity(velocity) }

// Initialize stores the delivery parameters and arms the expiry countdown.
// Landing does not cancel the countdown.
func (b *Ball) Initialize(params delivery.Parameters) {
	b.params = params
	b.expires.Cancel()
	b.expires = b.scheduler.After(b.expiry, b.retire)
}

// OnPhysicsStep pushes the swing acceleration while the ball is in the air.
func (b *Ball) OnPhysicsStep(dt float64) {
	if b.params.Mode != delivery.Swing || b.landed || !b.params.Deviates() {
		return
	}
	side := b.body.Right().Scale(b.params.Direction.Sign() * b.params.SwingAcceleration())
	b.body.AddAcceleration(side)
}

// OnGroundContact handles the first ground contact of a delivery. Contacts with
// other surfaces and repeated contacts are ignored.
func (b *Ball) OnGroundContact(contact physics.Contact) {
	if b.landed || contact.Tag != physics.GroundTag {
		return
	}
	b.landed = true
	before := b.body.Velocity()
	after := before
	if b.params.Mode == delivery.Spin && b.params.Deviates() {
		//1.- Turn the post-bounce velocity about the vertical axis.
		after = before.RotateY(b.params.SpinTurnDeg())
		b.body.SetVelocity(after)
	}
	if b.onLand != nil {
		b.onLand(b, contact, before, after)
	}
}

func (b *Ball) retire() {
	b.expires = nil
	if b.onRetire != nil {
		b.onRetire(b)
		return
	}
	b.body.SetActive(false)
}

var _ physics.Listener = (*Ball)(nil)
