package renderer

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// frameConfig is the caller-controlled camera and viewport state. Setters write a pending
// copy which StartScene commits; the committed copy is frozen while a scene is open.
type frameConfig struct {
	view     mgl32.Mat4
	proj     mgl32.Mat4
	zNear    float32
	skybox   mgl32.Mat3
	viewport Viewport
	surfaceW uint32
	surfaceH uint32
	ambient  mgl32.Vec3
	debug    DebugRenderMode
}

func defaultFrameConfig(w, h uint32) frameConfig {
	return frameConfig{
		view:     mgl32.Ident4(),
		proj:     common.PerspectiveZO(mgl32.DegToRad(45), w, h, 0.1, 1000),
		zNear:    0.1,
		skybox:   mgl32.Ident3(),
		viewport: Viewport{Width: w, Height: h},
		surfaceW: w,
		surfaceH: h,
		ambient:  mgl32.Vec3{0.1, 0.1, 0.1},
	}
}

// targetsChanged reports whether committing next requires the backend targets to be rebuilt.
func (c frameConfig) targetsChanged(next frameConfig) bool {
	return c.viewport.Width != next.viewport.Width || c.viewport.Height != next.viewport.Height ||
		c.surfaceW != next.surfaceW || c.surfaceH != next.surfaceH
}

// globalBlock is the shared per-frame uniform block read by every shader stage.
//
// Layout (496 bytes): view, proj, viewProj, invProj, invView, invViewProj (6 × mat4),
// skybox rotation (3 × vec4), viewport, buffer size (w, h, 1/w, 1/h), ambient,
// params (zNear, debug mode, super-sample factor, 0).
type globalBlock struct {
	view        mgl32.Mat4
	proj        mgl32.Mat4
	viewProj    mgl32.Mat4
	invView     mgl32.Mat4
	invProj     mgl32.Mat4
	invViewProj mgl32.Mat4
	frustum     common.Frustum
	zNear       float32

	bufferW, bufferH uint32
	superSample      uint32

	data  [globalsSize]byte
	dirty bool
}

func newGlobalBlock() *globalBlock {
	return &globalBlock{dirty: true}
}

// recompute derives every matrix from cfg and re-encodes the block.
func (g *globalBlock) recompute(cfg frameConfig, bufferW, bufferH, superSample uint32) {
	g.view = cfg.view
	g.proj = cfg.proj
	g.zNear = cfg.zNear
	g.viewProj = cfg.proj.Mul4(cfg.view)
	g.invView = cfg.view.Inv()
	g.invProj = cfg.proj.Inv()
	g.invViewProj = g.viewProj.Inv()
	g.frustum = common.ExtractFrustum(g.viewProj)
	g.bufferW, g.bufferH, g.superSample = bufferW, bufferH, superSample

	b := g.data[:]
	for i, m := range []mgl32.Mat4{g.view, g.proj, g.viewProj, g.invProj, g.invView, g.invViewProj} {
		common.PutMat4(b[i*64:], m)
	}
	off := 384
	for col := 0; col < 3; col++ {
		c := cfg.skybox.Col(col)
		common.PutVec4(b[off+col*16:], c[0], c[1], c[2], 0)
	}
	off += 48
	vp := cfg.viewport
	common.PutVec4(b[off:], float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height))
	off += 16
	w, h := float32(max(bufferW, 1)), float32(max(bufferH, 1))
	common.PutVec4(b[off:], w, h, 1/w, 1/h)
	off += 16
	common.PutVec4(b[off:], cfg.ambient[0], cfg.ambient[1], cfg.ambient[2], 1)
	off += 16
	common.PutVec4(b[off:], cfg.zNear, float32(cfg.debug), float32(superSample), 0)
	g.dirty = true
}

// viewSpace transforms a world position into view space.
func (g *globalBlock) viewSpace(p mgl32.Vec3) mgl32.Vec3 {
	return g.view.Mul4x1(p.Vec4(1)).Vec3()
}

// unproject maps a viewport pixel and a depth in [0, 1] back to world space.
func (g *globalBlock) unproject(vp Viewport, x, y, z float32) (mgl32.Vec3, bool) {
	if vp.Width == 0 || vp.Height == 0 {
		return mgl32.Vec3{}, false
	}
	ndc := mgl32.Vec4{
		2*(x-float32(vp.X))/float32(vp.Width) - 1,
		1 - 2*(y-float32(vp.Y))/float32(vp.Height),
		z,
		1,
	}
	p := g.invViewProj.Mul4x1(ndc)
	if p[3] == 0 {
		return mgl32.Vec3{}, false
	}
	return p.Vec3().Mul(1 / p[3]), true
}
