package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestInitBillboard(t *testing.T) {
	var tris [2]FXTriangle
	InitBillboard(&tris, mgl32.Vec3{0, 0, -5}, 2, 1, mgl32.Ident4(), TexRect{U0: 0.25, V0: 0, U1: 0.5, V1: 1})

	tl := tris[0].Vert[0]
	if tl != (FXVertex{X: -2, Y: 1, Z: -5, U: 0.25, V: 0}) {
		t.Errorf("top-left = %+v", tl)
	}
	br := tris[1].Vert[2]
	if br != (FXVertex{X: 2, Y: -1, Z: -5, U: 0.5, V: 1}) {
		t.Errorf("bottom-right = %+v", br)
	}
	if tris[0].Vert[2] != tris[1].Vert[0] || tris[0].Vert[1] != tris[1].Vert[1] {
		t.Error("triangles do not share the diagonal")
	}
}

func TestInitOffsetBillboardMovesTowardCamera(t *testing.T) {
	var tris [2]FXTriangle
	// Camera at the origin looking down -Z; the quad at z=-5 moves to z=-4.
	InitOffsetBillboard(&tris, mgl32.Vec3{0, 0, -5}, 1, 1, 1, mgl32.Ident4(), TexRect{U1: 1, V1: 1})
	for i, tri := range tris {
		for j, v := range tri.Vert {
			if v.Z < -4.0001 || v.Z > -3.9999 {
				t.Errorf("triangle %d vertex %d z = %v, want -4", i, j, v.Z)
			}
		}
	}
}
