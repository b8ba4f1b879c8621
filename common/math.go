package common

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// depthZeroToOne remaps OpenGL clip-space depth [-1, 1] to the WebGPU range [0, 1].
var depthZeroToOne = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// PutMat4 writes a column-major matrix into buf as 16 little-endian float32 values.
// buf must hold at least 64 bytes.
func PutMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		putFloat(buf[i*4:], v)
	}
}

// PutVec4 writes four little-endian float32 values into buf.
func PutVec4(buf []byte, x, y, z, w float32) {
	putFloat(buf[0:], x)
	putFloat(buf[4:], y)
	putFloat(buf[8:], z)
	putFloat(buf[12:], w)
}

func putFloat(buf []byte, v float32) {
	b := math.Float32bits(v)
	buf[0] = byte(b)
	buf[1] = byte(b >> 8)
	buf[2] = byte(b >> 16)
	buf[3] = byte(b >> 24)
}

// PerspectiveZO creates a right-handed perspective projection whose clip-space depth is [0, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - width, height: viewport size in pixels, used for the aspect ratio
//   - near, far: clipping plane distances (0 < near < far)
//
// Returns:
//   - mgl32.Mat4: the projection matrix
func PerspectiveZO(fovY float32, width, height uint32, near, far float32) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return depthZeroToOne.Mul4(mgl32.Perspective(fovY, aspect, near, far))
}

// OrthographicZO creates a right-handed orthographic projection whose clip-space depth is [0, 1].
func OrthographicZO(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	return depthZeroToOne.Mul4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// BillboardCorners returns the four world-space corners of a camera-facing quad centred at c.
// The camera right and up axes are taken from the inverse view matrix. Corners are ordered
// top-left, bottom-left, top-right, bottom-right.
//
// Parameters:
//   - c: centre of the quad in world space
//   - halfW, halfH: half extents along the camera right and up axes
//   - invView: the inverse of the view matrix (camera-to-world)
//
// Returns:
//   - [4]mgl32.Vec3: the quad corners
func BillboardCorners(c mgl32.Vec3, halfW, halfH float32, invView mgl32.Mat4) [4]mgl32.Vec3 {
	right := invView.Col(0).Vec3().Mul(halfW)
	up := invView.Col(1).Vec3().Mul(halfH)
	return [4]mgl32.Vec3{
		c.Sub(right).Add(up),
		c.Sub(right).Sub(up),
		c.Add(right).Add(up),
		c.Add(right).Sub(up),
	}
}

// TowardCamera returns p moved distance units toward the camera eye held in invView.
func TowardCamera(p mgl32.Vec3, distance float32, invView mgl32.Mat4) mgl32.Vec3 {
	eye := invView.Col(3).Vec3()
	dir := eye.Sub(p)
	if dir.Len() == 0 {
		return p
	}
	return p.Add(dir.Normalize().Mul(distance))
}

// PackBGRA packs a colour the way instance records store it: blue in the low byte, alpha in the high byte.
func PackBGRA(c color.RGBA) uint32 {
	return uint32(c.B) | uint32(c.G)<<8 | uint32(c.R)<<16 | uint32(c.A)<<24
}

// UnpackBGRA reverses PackBGRA.
func UnpackBGRA(v uint32) color.RGBA {
	return color.RGBA{B: uint8(v), G: uint8(v >> 8), R: uint8(v >> 16), A: uint8(v >> 24)}
}
