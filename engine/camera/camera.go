package camera

import (
	"math"
	"sync"

	"github.com/charmbracelet/harmonica"
	"github.com/go-gl/mathgl/mgl32"
)

// orbitState is a camera placement in spherical coordinates around a target.
type orbitState struct {
	radius    float32
	azimuth   float32 // Horizontal angle around Y axis
	elevation float32 // Vertical angle from horizontal plane
	target    mgl32.Vec3
}

// orbitCamera is the implementation of the Camera interface.
// Input moves the goal placement; Update eases the current placement toward it with critically
// damped springs so the view never jumps.
type orbitCamera struct {
	mu sync.Mutex

	current orbitState
	goal    orbitState

	// Spring velocities, one per eased quantity.
	velRadius, velAzimuth, velElevation float64
	velTarget                           [3]float64

	// Orbit constraints
	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32

	frequency float64
	damping   float64
}

// Camera is an orbit camera that produces view matrices for the renderer.
type Camera interface {
	// Orbit rotates the goal placement around the target.
	//
	// Parameters:
	//   - dx, dy: pointer movement in pixels, scaled by the mouse sensitivity
	Orbit(dx, dy float32)

	// Zoom moves the goal placement toward the target. Positive delta zooms in.
	Zoom(delta float32)

	// Pan translates the goal target along the camera's right and up axes.
	Pan(right, up float32)

	// SetTarget moves the goal target.
	SetTarget(target mgl32.Vec3)

	// Snap makes the current placement equal to the goal and stops all motion.
	Snap()

	// Update advances the springs by dt seconds.
	//
	// Returns:
	//   - bool: true while the camera is still moving
	Update(dt float32) bool

	// Position returns the current world-space eye position.
	Position() mgl32.Vec3

	// Target returns the current look-at point.
	Target() mgl32.Vec3

	// ViewMatrix returns the current right-handed look-at matrix.
	ViewMatrix() mgl32.Mat4
}

var _ Camera = &orbitCamera{}

// NewCamera creates an orbit camera at rest on its initial placement.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &orbitCamera{
		goal: orbitState{
			radius:    250.0,
			elevation: float32(math.Pi / 6),
		},

		minRadius:    1.0,
		maxRadius:    2000.0,
		minElevation: -float32(math.Pi/2 - 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),

		mouseSensitivity: 0.005,
		zoomSpeed:        15.0,
		panSpeed:         1.0,

		frequency: 6.0,
		damping:   1.0,
	}

	for _, option := range options {
		option(c)
	}

	c.clampGoal()
	c.current = c.goal
	return c
}

// clampGoal keeps the goal inside the radius and elevation bounds.
// Caller must hold the mutex.
func (c *orbitCamera) clampGoal() {
	c.goal.radius = min(max(c.goal.radius, c.minRadius), c.maxRadius)
	c.goal.elevation = min(max(c.goal.elevation, c.minElevation), c.maxElevation)
}

// eye computes the eye position of s.
func (s orbitState) eye() mgl32.Vec3 {
	cosElev := float32(math.Cos(float64(s.elevation)))
	sinElev := float32(math.Sin(float64(s.elevation)))
	cosAzim := float32(math.Cos(float64(s.azimuth)))
	sinAzim := float32(math.Sin(float64(s.azimuth)))

	return s.target.Add(mgl32.Vec3{
		s.radius * cosElev * sinAzim,
		s.radius * sinElev,
		s.radius * cosElev * cosAzim,
	})
}

// axes returns the right and up vectors of s, consistent with LookAt.
func (s orbitState) axes() (right, up mgl32.Vec3) {
	back := s.eye().Sub(s.target)
	if back.Len() < 1e-8 {
		return mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}
	}
	back = back.Normalize()
	right = mgl32.Vec3{0, 1, 0}.Cross(back)
	if right.Len() < 1e-8 {
		return mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}
	}
	right = right.Normalize()
	return right, back.Cross(right)
}

func (c *orbitCamera) Orbit(dx, dy float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal.azimuth -= dx * c.mouseSensitivity
	c.goal.elevation += dy * c.mouseSensitivity
	c.clampGoal()
}

func (c *orbitCamera) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal.radius -= delta * c.zoomSpeed
	c.clampGoal()
}

func (c *orbitCamera) Pan(right, up float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, u := c.goal.axes()
	c.goal.target = c.goal.target.Add(r.Mul(right * c.panSpeed)).Add(u.Mul(up * c.panSpeed))
}

func (c *orbitCamera) SetTarget(target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goal.target = target
}

func (c *orbitCamera) Snap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.goal
	c.velRadius, c.velAzimuth, c.velElevation = 0, 0, 0
	c.velTarget = [3]float64{}
}

func (c *orbitCamera) Update(dt float32) bool {
	if dt <= 0 {
		return c.moving()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	spring := harmonica.NewSpring(float64(dt), c.frequency, c.damping)
	step := func(pos float32, vel *float64, goal float32) float32 {
		p, v := spring.Update(float64(pos), *vel, float64(goal))
		*vel = v
		return float32(p)
	}

	c.current.radius = step(c.current.radius, &c.velRadius, c.goal.radius)
	c.current.azimuth = step(c.current.azimuth, &c.velAzimuth, c.goal.azimuth)
	c.current.elevation = step(c.current.elevation, &c.velElevation, c.goal.elevation)
	for i := range c.current.target {
		c.current.target[i] = step(c.current.target[i], &c.velTarget[i], c.goal.target[i])
	}
	return c.movingLocked()
}

func (c *orbitCamera) moving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.movingLocked()
}

// movingLocked reports whether the current placement is still away from the goal.
// Caller must hold the mutex.
func (c *orbitCamera) movingLocked() bool {
	const eps = 1e-4
	near := func(a, b float32) bool { return a-b < eps && b-a < eps }
	return !near(c.current.radius, c.goal.radius) ||
		!near(c.current.azimuth, c.goal.azimuth) ||
		!near(c.current.elevation, c.goal.elevation) ||
		!near(c.current.target[0], c.goal.target[0]) ||
		!near(c.current.target[1], c.goal.target[1]) ||
		!near(c.current.target[2], c.goal.target[2])
}

func (c *orbitCamera) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.eye()
}

func (c *orbitCamera) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.target
}

func (c *orbitCamera) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mgl32.LookAtV(c.current.eye(), c.current.target, mgl32.Vec3{0, 1, 0})
}
