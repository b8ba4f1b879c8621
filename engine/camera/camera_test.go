package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestInitialPlacement(t *testing.T) {
	c := NewCamera(WithRadius(10), WithAzimuth(0), WithElevation(0))

	if p := c.Position(); !vecNear(p, mgl32.Vec3{0, 0, 10}, 1e-5) {
		t.Errorf("Position = %v, want [0 0 10]", p)
	}
	origin := c.ViewMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !vecNear(origin.Vec3(), mgl32.Vec3{0, 0, -10}, 1e-5) {
		t.Errorf("target in view space = %v, want [0 0 -10]", origin)
	}
	if c.Update(1.0 / 60) {
		t.Error("camera at rest reports motion")
	}
}

func TestBoundsClampGoal(t *testing.T) {
	c := NewCamera(WithRadius(10), WithElevation(0), WithRadiusBounds(5, 20), WithElevationBounds(-0.5, 0.5))

	c.Zoom(100)
	c.Orbit(0, 1e6)
	c.Snap()

	p := c.Position()
	if got := p.Len(); math.Abs(float64(got-5)) > 1e-4 {
		t.Errorf("radius after zoom = %v, want 5", got)
	}
	if want := float32(5 * math.Sin(0.5)); math.Abs(float64(p.Y()-want)) > 1e-4 {
		t.Errorf("height = %v, want %v at the elevation bound", p.Y(), want)
	}
}

func TestUpdateEasesTowardGoal(t *testing.T) {
	c := NewCamera(WithRadius(10), WithElevation(0), WithSpring(6, 1))
	c.SetTarget(mgl32.Vec3{4, 0, 0})

	if !c.Update(1.0 / 60) {
		t.Fatal("no motion after moving the target")
	}
	if x := c.Target().X(); x <= 0 || x >= 4 {
		t.Errorf("target after one step = %v, want between 0 and 4", x)
	}

	for i := 0; i < 600 && c.Update(1.0/60); i++ {
	}
	if c.Update(1.0 / 60) {
		t.Error("camera still moving after ten seconds")
	}
	if !vecNear(c.Target(), mgl32.Vec3{4, 0, 0}, 1e-3) {
		t.Errorf("settled target = %v", c.Target())
	}
}

func TestPanMovesAlongCameraAxes(t *testing.T) {
	c := NewCamera(WithRadius(10), WithAzimuth(0), WithElevation(0), WithPanSpeed(2))
	c.Pan(1, 0)
	c.Snap()
	// Looking down -Z, right is +X.
	if tgt := c.Target(); !vecNear(tgt, mgl32.Vec3{2, 0, 0}, 1e-5) {
		t.Errorf("target after pan = %v, want [2 0 0]", tgt)
	}
}

// vecNear compares element-wise with an absolute tolerance; mgl32's relative
// comparison rejects float noise around zero components.
func vecNear(a, b mgl32.Vec3, tol float32) bool {
	for i := range a {
		if mgl32.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
