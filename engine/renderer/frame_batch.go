package renderer

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
)

// meshBatch collects every instance of one mesh submitted this frame.
type meshBatch struct {
	handle    MeshHandle
	instances []InstanceRecord
}

// sunInstance is one sun billboard.
type sunInstance struct {
	ramp     TextureHandle
	noise    SunNoise
	position mgl32.Vec3
	radius   float32
}

// quadBatch is a run of screen quads sharing one texture page.
type quadBatch struct {
	texture TextureHandle
	quads   []ScreenQuad
}

// sfxBatch is one DrawSFX submission.
type sfxBatch struct {
	tex1, tex2 TextureHandle
	color      color.RGBA
	triangles  []FXTriangle
}

// dynDraw is one queued dynamic buffer draw.
type dynDraw struct {
	buffer *dynBuffer
	params DynBufferDrawParams
}

// frameBatch accumulates one frame's draw requests without touching the GPU. Every pool
// grows monotonically and is reused by index, so steady-state frames do not allocate.
type frameBatch struct {
	meshes    []meshBatch
	meshLive  int
	meshIndex map[MeshHandle]int

	pointLights []PointLight
	dirLights   []DirectionalLight

	suns    []sunInstance
	sunLive int

	quads    []quadBatch
	quadLive int

	sfx     [2][]sfxBatch
	sfxLive [2]int

	dyn []dynDraw
}

func newFrameBatch() *frameBatch {
	return &frameBatch{meshIndex: make(map[MeshHandle]int)}
}

// reset empties the frame without releasing pooled storage. SFX live counts are reset
// when the effect passes consume them.
func (f *frameBatch) reset() {
	for i := 0; i < f.meshLive; i++ {
		f.meshes[i].instances = f.meshes[i].instances[:0]
	}
	f.meshLive = 0
	clear(f.meshIndex)
	f.pointLights = f.pointLights[:0]
	f.dirLights = f.dirLights[:0]
	f.sunLive = 0
	f.quadLive = 0
	clear(f.dyn)
	f.dyn = f.dyn[:0]
}

func (f *frameBatch) addMeshInstances(h MeshHandle, instances []InstanceRecord) {
	idx, ok := f.meshIndex[h]
	if !ok {
		if f.meshLive == len(f.meshes) {
			f.meshes = append(f.meshes, meshBatch{})
		}
		idx = f.meshLive
		f.meshLive++
		f.meshes[idx].handle = h
		f.meshes[idx].instances = f.meshes[idx].instances[:0]
		f.meshIndex[h] = idx
	}
	f.meshes[idx].instances = append(f.meshes[idx].instances, instances...)
}

func (f *frameBatch) addPointLight(l PointLight) {
	f.pointLights = append(f.pointLights, l)
}

func (f *frameBatch) addDirectionalLight(l DirectionalLight) {
	f.dirLights = append(f.dirLights, l)
}

func (f *frameBatch) addSun(ramp TextureHandle, noise SunNoise, position mgl32.Vec3, radius float32) {
	if f.sunLive == len(f.suns) {
		f.suns = append(f.suns, sunInstance{})
	}
	f.suns[f.sunLive] = sunInstance{ramp: ramp, noise: noise, position: position, radius: radius}
	f.sunLive++
}

// addScreenQuads extends the current batch when it uses the same page, otherwise opens a new one.
func (f *frameBatch) addScreenQuads(tex TextureHandle, quads []ScreenQuad) {
	if f.quadLive > 0 && f.quads[f.quadLive-1].texture == tex {
		last := &f.quads[f.quadLive-1]
		last.quads = append(last.quads, quads...)
		return
	}
	if f.quadLive == len(f.quads) {
		f.quads = append(f.quads, quadBatch{})
	}
	b := &f.quads[f.quadLive]
	f.quadLive++
	b.texture = tex
	b.quads = append(b.quads[:0], quads...)
}

func (f *frameBatch) addSFX(layer SFXLayer, tex1, tex2 TextureHandle, c color.RGBA, tris []FXTriangle) {
	pool := &f.sfx[layer]
	live := f.sfxLive[layer]
	if live == len(*pool) {
		*pool = append(*pool, sfxBatch{})
	}
	b := &(*pool)[live]
	b.tex1, b.tex2, b.color = tex1, tex2, c
	b.triangles = append(b.triangles[:0], tris...)
	f.sfxLive[layer] = live + 1
}

func (f *frameBatch) addDynDraw(b *dynBuffer, params DynBufferDrawParams) {
	f.dyn = append(f.dyn, dynDraw{buffer: b, params: params})
}

// liveMeshes returns the mesh batches submitted this frame in first-submission order.
func (f *frameBatch) liveMeshes() []meshBatch { return f.meshes[:f.meshLive] }

func (f *frameBatch) liveSuns() []sunInstance { return f.suns[:f.sunLive] }

func (f *frameBatch) liveQuads() []quadBatch { return f.quads[:f.quadLive] }

// consumeSFX returns the live batches of one layer and resets its live count.
func (f *frameBatch) consumeSFX(layer SFXLayer) []sfxBatch {
	live := f.sfx[layer][:f.sfxLive[layer]]
	f.sfxLive[layer] = 0
	return live
}
