package physics

import "math"

// Vec3 is a lightweight vector helper used by the physics utilities.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Up is the world vertical axis.
var Up = Vec3{Y: 1}

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Sub returns the component-wise difference.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Scale multiplies every component by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// Dot returns the scalar product.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Length returns the Euclidean magnitude.
func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// HorizontalLength ignores the vertical component.
func (v Vec3) HorizontalLength() float64 { return math.Hypot(v.X, v.Z) }

// IsZero reports whether every component is exactly zero.
func (v Vec3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// Distance returns |v - o|.
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// RotateY turns the vector about the vertical axis. Positive angles turn +Z
// toward +X, matching a left-handed yaw.
func (v Vec3) RotateY(deg float64) Vec3 {
	rad := deg * math.Pi / 180.0
	sin, cos := math.Sincos(rad)
	return Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// ApproxEqual compares each component within tolerance.
func (v Vec3) ApproxEqual(o Vec3, tolerance float64) bool {
	return math.Abs(v.X-o.X) <= tolerance &&
		math.Abs(v.Y-o.Y) <= tolerance &&
		math.Abs(v.Z-o.Z) <= tolerance
}

// Orientation stores Euler angles in degrees, applied roll, then pitch, then yaw.
type Orientation struct {
	YawDeg   float64 `json:"yaw_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	RollDeg  float64 `json:"roll_deg"`
}

// Identity is the zero rotation.
var Identity = Orientation{}

// Rotate applies the orientation to a local-space vector.
func (o Orientation) Rotate(v Vec3) Vec3 {
	//1.- Roll about Z first.
	sr, cr := math.Sincos(o.RollDeg * math.Pi / 180.0)
	v = Vec3{X: v.X*cr - v.Y*sr, Y: v.X*sr + v.Y*cr, Z: v.Z}
	//2.- Pitch about X so positive pitch tips forward downward.
	sp, cp := math.Sincos(o.PitchDeg * math.Pi / 180.0)
	v = Vec3{X: v.X, Y: v.Y*cp - v.Z*sp, Z: v.Y*sp + v.Z*cp}
	//3.- Yaw about the vertical axis last.
	return v.RotateY(o.YawDeg)
}

// Right returns the local lateral axis in world space.
func (o Orientation) Right() Vec3 { return o.Rotate(Vec3{X: 1}) }

// Forward returns the local forward axis in world space.
func (o Orientation) Forward() Vec3 { return o.Rotate(Vec3{Z: 1}) }

// wrapAngleDeg normalizes an angle to the [-180, 180) range.
func wrapAngleDeg(angle float64) float64 {
	wrapped := math.Mod(angle+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}
