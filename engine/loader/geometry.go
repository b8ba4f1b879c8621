package loader

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// stripToList expands a triangle strip into a triangle list, alternating the winding of odd
// triangles and skipping degenerate ones.
func stripToList(strip []uint32) []uint32 {
	if len(strip) < 3 {
		return nil
	}
	out := make([]uint32, 0, (len(strip)-2)*3)
	for i := 0; i+2 < len(strip); i++ {
		a, b, c := strip[i], strip[i+1], strip[i+2]
		if a == b || b == c || a == c {
			continue
		}
		if i%2 == 1 {
			a, b = b, a
		}
		out = append(out, a, b, c)
	}
	return out
}

// fanToList expands a triangle fan into a triangle list.
func fanToList(fan []uint32) []uint32 {
	if len(fan) < 3 {
		return nil
	}
	out := make([]uint32, 0, (len(fan)-2)*3)
	for i := 1; i+1 < len(fan); i++ {
		out = append(out, fan[0], fan[i], fan[i+1])
	}
	return out
}

// flipWinding swaps the second and third index of every triangle.
func flipWinding(indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		indices[i+1], indices[i+2] = indices[i+2], indices[i+1]
	}
}

// computeNormals fills every vertex normal with the area-weighted average of its face normals.
func computeNormals(vertices []renderer.MeshVertex, indices []uint32) {
	acc := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := mgl32.Vec3(vertices[i0].Position)
		n := mgl32.Vec3(vertices[i1].Position).Sub(p0).Cross(mgl32.Vec3(vertices[i2].Position).Sub(p0))
		acc[i0] = acc[i0].Add(n)
		acc[i1] = acc[i1].Add(n)
		acc[i2] = acc[i2].Add(n)
	}
	for i := range vertices {
		if acc[i].Len() > 1e-12 {
			vertices[i].Normal = acc[i].Normalize()
		} else {
			vertices[i].Normal = [3]float32{0, 1, 0}
		}
	}
}

// computeTangents derives per-vertex tangents from the UV gradient of each triangle,
// orthogonalised against the vertex normal.
func computeTangents(vertices []renderer.MeshVertex, indices []uint32) {
	acc := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		v0, v1, v2 := &vertices[i0], &vertices[i1], &vertices[i2]

		e1 := mgl32.Vec3(v1.Position).Sub(mgl32.Vec3(v0.Position))
		e2 := mgl32.Vec3(v2.Position).Sub(mgl32.Vec3(v0.Position))
		du1, dv1 := v1.UV[0]-v0.UV[0], v1.UV[1]-v0.UV[1]
		du2, dv2 := v2.UV[0]-v0.UV[0], v2.UV[1]-v0.UV[1]

		det := du1*dv2 - du2*dv1
		if det > -1e-12 && det < 1e-12 {
			continue
		}
		t := e1.Mul(dv2).Sub(e2.Mul(dv1)).Mul(1 / det)
		acc[i0] = acc[i0].Add(t)
		acc[i1] = acc[i1].Add(t)
		acc[i2] = acc[i2].Add(t)
	}
	for i := range vertices {
		n := mgl32.Vec3(vertices[i].Normal)
		t := acc[i].Sub(n.Mul(n.Dot(acc[i])))
		if t.Len() < 1e-6 {
			t = anyPerpendicular(n)
		}
		vertices[i].Tangent = t.Normalize()
	}
}

// anyPerpendicular returns a unit vector perpendicular to n.
func anyPerpendicular(n mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if n[0] > 0.9 || n[0] < -0.9 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	return n.Cross(axis).Normalize()
}
