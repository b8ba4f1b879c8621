package renderer

import (
	"encoding/binary"
	"image/color"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPU record sizes in bytes. All records are little-endian and match the WGSL structs in assets/.
const (
	meshVertexSize      = 44
	instanceSize        = 80
	globalsSize         = 496
	lightUniformSize    = 32
	dynUniformSize      = 80
	fxVertexSize        = 36
	quadVertexSize      = 20
	quadVerticesPerQuad = 4
	dynPositionSize     = 12
	dynUVSize           = 8
	dynColorSize        = 4
	dynIndexSize        = 2
)

var le = binary.LittleEndian

func putF32(buf []byte, v float32) {
	le.PutUint32(buf, math.Float32bits(v))
}

// encodeMeshVertices packs vertices in the model shader layout: position, uv, tangent, normal.
func encodeMeshVertices(vertices []MeshVertex) []byte {
	out := make([]byte, len(vertices)*meshVertexSize)
	for i, v := range vertices {
		b := out[i*meshVertexSize:]
		putF32(b[0:], v.Position[0])
		putF32(b[4:], v.Position[1])
		putF32(b[8:], v.Position[2])
		putF32(b[12:], v.UV[0])
		putF32(b[16:], v.UV[1])
		putF32(b[20:], v.Tangent[0])
		putF32(b[24:], v.Tangent[1])
		putF32(b[28:], v.Tangent[2])
		putF32(b[32:], v.Normal[0])
		putF32(b[36:], v.Normal[1])
		putF32(b[40:], v.Normal[2])
	}
	return out
}

func encodeIndices32(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, idx := range indices {
		le.PutUint32(out[i*4:], idx)
	}
	return out
}

// appendInstances packs instance records into dst, reusing its capacity.
// Layout: transform (64), team hue (4), emissive 0 and 1 (8), padding (4).
func appendInstances(dst []byte, instances []InstanceRecord) []byte {
	n := len(dst)
	dst = grow(dst, len(instances)*instanceSize)
	for i := range instances {
		b := dst[n+i*instanceSize:]
		common.PutMat4(b, instances[i].Transform)
		le.PutUint32(b[64:], instances[i].TeamHue)
		le.PutUint32(b[68:], instances[i].Emissive[0])
		le.PutUint32(b[72:], instances[i].Emissive[1])
		le.PutUint32(b[76:], 0)
	}
	return dst
}

// encodeLight packs a light uniform: position or direction with radius, then colour with a point flag.
func encodeLight(buf []byte, posOrDir mgl32.Vec3, radius float32, c mgl32.Vec3, point bool) []byte {
	buf = buf[:lightUniformSize]
	common.PutVec4(buf[0:], posOrDir[0], posOrDir[1], posOrDir[2], radius)
	var flag float32
	if point {
		flag = 1
	}
	common.PutVec4(buf[16:], c[0], c[1], c[2], flag)
	return buf
}

// encodeDynUniform packs the dynamic buffer transform and tint colour.
func encodeDynUniform(buf []byte, m mgl32.Mat4, c [4]float32) []byte {
	buf = buf[:dynUniformSize]
	common.PutMat4(buf, m)
	common.PutVec4(buf[64:], c[0], c[1], c[2], c[3])
	return buf
}

// appendFXVertex packs one billboard vertex: position, uv, and four extra floats whose meaning
// depends on the program (noise parameters for suns, centre for coronas, tint for effects).
func appendFXVertex(dst []byte, p mgl32.Vec3, u, v float32, extra [4]float32) []byte {
	n := len(dst)
	dst = grow(dst, fxVertexSize)
	b := dst[n:]
	putF32(b[0:], p[0])
	putF32(b[4:], p[1])
	putF32(b[8:], p[2])
	putF32(b[12:], u)
	putF32(b[16:], v)
	putF32(b[20:], extra[0])
	putF32(b[24:], extra[1])
	putF32(b[28:], extra[2])
	putF32(b[32:], extra[3])
	return dst
}

// appendQuad packs the four corners of a screen quad in top-left, bottom-left, top-right,
// bottom-right order. Screen coordinates in [0, 1] with y down are mapped to clip space.
func appendQuad(dst []byte, q *ScreenQuad) []byte {
	x0 := 2*q.Screen.X - 1
	x1 := 2*(q.Screen.X+q.Screen.Width) - 1
	y0 := -2*q.Screen.Y + 1
	y1 := -2*(q.Screen.Y+q.Screen.Height) + 1
	corners := [4][4]float32{
		{x0, y0, q.Tex.U0, q.Tex.V0},
		{x0, y1, q.Tex.U0, q.Tex.V1},
		{x1, y0, q.Tex.U1, q.Tex.V0},
		{x1, y1, q.Tex.U1, q.Tex.V1},
	}
	n := len(dst)
	dst = grow(dst, quadVerticesPerQuad*quadVertexSize)
	for i, c := range corners {
		b := dst[n+i*quadVertexSize:]
		putF32(b[0:], c[0])
		putF32(b[4:], c[1])
		putF32(b[8:], c[2])
		putF32(b[12:], c[3])
		putRGBA(b[16:], q.Corners[i])
	}
	return dst
}

func putRGBA(b []byte, c color.RGBA) {
	b[0], b[1], b[2], b[3] = c.R, c.G, c.B, c.A
}

// quadIndices returns the shared index buffer for n quads, two triangles per quad.
func quadIndices(n int) []uint16 {
	out := make([]uint16, 0, n*6)
	for i := 0; i < n; i++ {
		base := uint16(i * 4)
		out = append(out, base, base+1, base+2, base+2, base+1, base+3)
	}
	return out
}

func encodeDynPositions(v []DynVertex) []byte {
	out := make([]byte, len(v)*dynPositionSize)
	for i, p := range v {
		putF32(out[i*12:], p.X)
		putF32(out[i*12+4:], p.Y)
		putF32(out[i*12+8:], p.Z)
	}
	return out
}

func encodeDynUVs(v []DynUV) []byte {
	out := make([]byte, len(v)*dynUVSize)
	for i, uv := range v {
		putF32(out[i*8:], uv.U)
		putF32(out[i*8+4:], uv.V)
	}
	return out
}

func encodeDynColors(v []color.RGBA) []byte {
	out := make([]byte, len(v)*dynColorSize)
	for i, c := range v {
		putRGBA(out[i*4:], c)
	}
	return out
}

// encodeDynIndices packs uint16 indices, padding to a multiple of four bytes for buffer writes.
func encodeDynIndices(v []uint16) []byte {
	out := make([]byte, (len(v)*dynIndexSize+3)&^3)
	for i, idx := range v {
		le.PutUint16(out[i*2:], idx)
	}
	return out
}

// grow extends b by n bytes, reallocating only when capacity is exhausted.
func grow(b []byte, n int) []byte {
	if need := len(b) + n; need <= cap(b) {
		return b[:need]
	}
	nb := make([]byte, len(b)+n, 2*cap(b)+n)
	copy(nb, b)
	return nb
}
