package renderer

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// InitBillboard fills two effect triangles with a camera-facing quad.
//
// Parameters:
//   - tris: destination for the two triangles
//   - centre: quad centre in world space
//   - halfW, halfH: half extents along the camera right and up axes
//   - invView: the inverse view matrix, see Renderer.InverseViewMatrix
//   - tex: texture region mapped onto the quad
func InitBillboard(tris *[2]FXTriangle, centre mgl32.Vec3, halfW, halfH float32, invView mgl32.Mat4, tex TexRect) {
	c := common.BillboardCorners(centre, halfW, halfH, invView)
	tl := fxVertex(c[0], tex.U0, tex.V0)
	bl := fxVertex(c[1], tex.U0, tex.V1)
	tr := fxVertex(c[2], tex.U1, tex.V0)
	br := fxVertex(c[3], tex.U1, tex.V1)
	tris[0] = FXTriangle{Vert: [3]FXVertex{tl, bl, tr}}
	tris[1] = FXTriangle{Vert: [3]FXVertex{tr, bl, br}}
}

// InitOffsetBillboard is InitBillboard with the centre moved offset units toward the camera,
// keeping effects from intersecting the geometry they decorate.
func InitOffsetBillboard(tris *[2]FXTriangle, centre mgl32.Vec3, offset, halfW, halfH float32, invView mgl32.Mat4, tex TexRect) {
	InitBillboard(tris, common.TowardCamera(centre, offset, invView), halfW, halfH, invView, tex)
}

func fxVertex(p mgl32.Vec3, u, v float32) FXVertex {
	return FXVertex{X: p[0], Y: p[1], Z: p[2], U: u, V: v}
}
