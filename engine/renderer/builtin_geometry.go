package renderer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// icosahedronInradius is the distance from the centre of a unit-circumradius icosahedron to
// its faces. Scaling by its inverse makes the proxy enclose the whole light sphere.
const icosahedronInradius = 0.7946544722917661

// lightVolumeVertices returns the point light proxy: an icosahedron enclosing the unit sphere,
// as a non-indexed counter-clockwise triangle list of 20 faces.
func lightVolumeVertices() []mgl32.Vec3 {
	phi := float32((1 + math.Sqrt(5)) / 2)
	corners := []mgl32.Vec3{
		{-1, phi, 0}, {1, phi, 0}, {-1, -phi, 0}, {1, -phi, 0},
		{0, -1, phi}, {0, 1, phi}, {0, -1, -phi}, {0, 1, -phi},
		{phi, 0, -1}, {phi, 0, 1}, {-phi, 0, -1}, {-phi, 0, 1},
	}
	faces := [20][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	scale := float32(1 / icosahedronInradius)
	out := make([]mgl32.Vec3, 0, len(faces)*3)
	for _, f := range faces {
		for _, i := range f {
			out = append(out, corners[i].Normalize().Mul(scale))
		}
	}
	return out
}

// skyboxVertices returns a unit cube seen from the inside as 12 triangles.
func skyboxVertices() []mgl32.Vec3 {
	c := [8]mgl32.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	faces := [6][4]int{
		{1, 5, 6, 2}, // +X
		{4, 0, 3, 7}, // -X
		{3, 2, 6, 7}, // +Y
		{4, 5, 1, 0}, // -Y
		{5, 4, 7, 6}, // +Z
		{0, 1, 2, 3}, // -Z
	}
	out := make([]mgl32.Vec3, 0, 36)
	for _, f := range faces {
		// Wound clockwise from outside so the inside faces are front-facing.
		out = append(out, c[f[0]], c[f[2]], c[f[1]], c[f[0]], c[f[3]], c[f[2]])
	}
	return out
}

// encodeVec3s packs positions as tightly packed float32 triples.
func encodeVec3s(v []mgl32.Vec3) []byte {
	out := make([]byte, len(v)*12)
	for i, p := range v {
		putF32(out[i*12:], p[0])
		putF32(out[i*12+4:], p[1])
		putF32(out[i*12+8:], p[2])
	}
	return out
}
