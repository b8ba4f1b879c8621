package common

import (
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestPerspectiveZODepthRange(t *testing.T) {
	p := PerspectiveZO(mgl32.DegToRad(60), 800, 600, 0.5, 100)

	for _, tt := range []struct {
		z, want float32
	}{{-0.5, 0}, {-100, 1}} {
		clip := p.Mul4x1(mgl32.Vec4{0, 0, tt.z, 1})
		if got := clip[2] / clip[3]; mgl32.Abs(got-tt.want) > 1e-5 {
			t.Errorf("depth at z=%v = %v, want %v", tt.z, got, tt.want)
		}
	}
}

func TestOrthographicZOMapsBox(t *testing.T) {
	o := OrthographicZO(-4, 4, -3, 3, 1, 50)

	for _, tt := range []struct {
		in, want mgl32.Vec3
	}{
		{mgl32.Vec3{-4, -3, -1}, mgl32.Vec3{-1, -1, 0}},
		{mgl32.Vec3{4, 3, -50}, mgl32.Vec3{1, 1, 1}},
		{mgl32.Vec3{0, 0, -25.5}, mgl32.Vec3{0, 0, 0.5}},
	} {
		clip := o.Mul4x1(tt.in.Vec4(1))
		if clip[3] != 1 {
			t.Errorf("w at %v = %v, want 1", tt.in, clip[3])
		}
		if !vecNear(clip.Vec3(), tt.want, 1e-5) {
			t.Errorf("%v maps to %v, want %v", tt.in, clip.Vec3(), tt.want)
		}
	}
}

func TestBillboardCornersFaceCamera(t *testing.T) {
	invView := mgl32.Ident4()
	c := BillboardCorners(mgl32.Vec3{0, 0, -5}, 2, 1, invView)

	want := [4]mgl32.Vec3{{-2, 1, -5}, {-2, -1, -5}, {2, 1, -5}, {2, -1, -5}}
	for i := range want {
		if !vecNear(c[i], want[i], 1e-5) {
			t.Errorf("corner %d = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestTowardCamera(t *testing.T) {
	invView := mgl32.Translate3D(0, 0, 10)
	got := TowardCamera(mgl32.Vec3{0, 0, 0}, 3, invView)
	if !vecNear(got, mgl32.Vec3{0, 0, 3}, 1e-5) {
		t.Errorf("TowardCamera = %v", got)
	}
	eye := mgl32.Vec3{0, 0, 10}
	if got := TowardCamera(eye, 3, invView); got != eye {
		t.Errorf("point at the eye moved to %v", got)
	}
}

func TestPackBGRA(t *testing.T) {
	c := color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}
	if got := PackBGRA(c); got != 0x44112233 {
		t.Errorf("PackBGRA = %#x", got)
	}
	if got := UnpackBGRA(PackBGRA(c)); got != c {
		t.Errorf("UnpackBGRA = %v", got)
	}
}

func TestStagingValidate(t *testing.T) {
	ok := &TextureStagingData{Data: make([]byte, 12), Width: 2, Height: 2}
	if err := ok.Validate(3); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := ok.Validate(4); err == nil {
		t.Error("wrong pixel size accepted")
	}
	var missing *TextureStagingData
	if err := missing.Validate(4); err == nil {
		t.Error("nil staging data accepted")
	}

	rgba := ok.ExpandRGB()
	if len(rgba.Data) != 16 || rgba.Data[3] != 0xFF {
		t.Errorf("ExpandRGB = %v", rgba.Data)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(float32(1.5), 0, 1) != 1 || Clamp(-2, 0, 10) != 0 || Clamp(uint32(5), 1, 9) != 5 {
		t.Error("Clamp out of range")
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
