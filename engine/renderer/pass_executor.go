package renderer

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// passScratch holds the reusable encode buffers of the pass executor.
type passScratch struct {
	instances []byte
	vertices  []byte
	uniform   [dynUniformSize]byte
	sfx       []FXTriangle
}

// executeFrame runs every pass of the open frame in order and presents it. Dynamic buffer
// queue counts and effect live counts are always consumed, even when the backend fails.
func (r *renderer) executeFrame() error {
	b := r.backend
	f := r.batch
	consumed := 0
	defer func() {
		for _, d := range f.dyn[consumed:] {
			d.buffer.queued--
		}
		f.consumeSFX(SFXEmissive)
		f.consumeSFX(SFXDiffuse)
	}()

	if r.globals.dirty {
		b.WriteGlobals(r.globals.data[:])
		r.globals.dirty = false
	}
	if err := b.BeginFrame(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}

	r.frameTriangles = 0
	r.modelPass()
	r.lightingPass()
	r.sunSpherePass()
	r.coronaPass()
	r.sfxPass(PassEmissiveSFX, SFXEmissive)
	r.compositionPass()
	consumed = r.dynBufferPass()
	r.sfxPass(PassDiffuseSFX, SFXDiffuse)
	r.postEffectPass()
	r.screenQuadPass()

	if err := b.EndFrame(r.committed.viewport); err != nil {
		return fmt.Errorf("end frame: %w", err)
	}
	return nil
}

// modelPass fills the G-buffer. Instances are uploaded and drawn in chunks of at most
// MaxInstancesPerBatch.
func (r *renderer) modelPass() {
	b := r.backend
	b.BeginPass(PassModel)
	b.SetStencilReference(stencilMesh)
	for _, mb := range r.batch.liveMeshes() {
		m := r.store.mesh(mb.handle)
		if m == nil || len(mb.instances) == 0 {
			continue
		}
		b.SetState(DrawState{
			Program:    ProgramModel,
			Topology:   m.topology,
			Cull:       CullBack,
			Depth:      DepthLess,
			DepthWrite: true,
			Stencil:    StencilWriteMesh,
			ColorWrite: true,
		})
		for start := 0; start < len(mb.instances); start += MaxInstancesPerBatch {
			end := min(start+MaxInstancesPerBatch, len(mb.instances))
			r.scratch.instances = appendInstances(r.scratch.instances[:0], mb.instances[start:end])
			b.DrawMesh(m.gpu, m.diffuse, m.normals, r.scratch.instances, uint32(end-start), m.indexCount)
		}
		r.frameTriangles += m.triangles * uint32(len(mb.instances))
	}
	b.EndPass()
}

// lightingPass accumulates every light into the lit diffuse and specular targets using
// stencil-marked light volumes.
func (r *renderer) lightingPass() {
	b := r.backend
	g := r.globals
	b.BeginPass(PassLighting)

	id := uint32(FirstLightStencil)
	for _, l := range r.batch.pointLights {
		if !g.frustum.SphereVisible(l.Position, l.Radius) {
			continue
		}
		uniform := encodeLight(r.scratch.uniform[:], l.Position, l.Radius, l.Color, true)
		b.SetStencilReference(id)
		if g.viewSpace(l.Position).Len() > l.Radius+g.zNear {
			// Camera outside the volume: mark pixels in front of the back faces, then shade
			// the marked pixels behind the front faces.
			b.SetState(DrawState{
				Program: ProgramPointLight,
				Cull:    CullFront,
				Depth:   DepthGreaterEqual,
				Stencil: StencilMarkLight,
			})
			b.DrawLight(uniform)
			b.SetState(DrawState{
				Program:    ProgramPointLight,
				Cull:       CullBack,
				Depth:      DepthLessEqual,
				Stencil:    StencilMatchLight,
				ColorWrite: true,
				Blend:      BlendAdditive,
			})
			b.DrawLight(uniform)
		} else {
			b.SetState(DrawState{
				Program:    ProgramPointLight,
				Cull:       CullFront,
				Depth:      DepthGreaterEqual,
				Stencil:    StencilBelowLight,
				ColorWrite: true,
				Blend:      BlendAdditive,
			})
			b.DrawLight(uniform)
		}
		if id < MaxLightStencil {
			id++
		}
	}

	if len(r.batch.dirLights) > 0 {
		b.SetStencilReference(stencilClear)
		b.SetState(DrawState{
			Program:    ProgramDirectionalLight,
			Depth:      DepthAlways,
			Stencil:    StencilMeshOnly,
			ColorWrite: true,
			Blend:      BlendAdditive,
		})
		for _, l := range r.batch.dirLights {
			dir := l.Direction
			if dir.Len() > 0 {
				dir = dir.Normalize()
			}
			b.DrawLight(encodeLight(r.scratch.uniform[:], dir, 0, l.Color, false))
		}
	}
	b.EndPass()
}

// sunSpherePass draws sun billboards grouped by ramp texture.
func (r *renderer) sunSpherePass() {
	b := r.backend
	b.BeginPass(PassSunSpheres)
	defer b.EndPass()

	suns := r.batch.liveSuns()
	if len(suns) == 0 {
		return
	}
	noise := r.noiseVolume()
	if noise == nil {
		return
	}
	slices.SortStableFunc(suns, func(a, b sunInstance) int { return cmp.Compare(a.ramp, b.ramp) })

	b.SetState(DrawState{
		Program:    ProgramSun,
		Depth:      DepthLess,
		DepthWrite: true,
		ColorWrite: true,
	})
	invView := r.globals.invView
	for start := 0; start < len(suns); {
		end := start
		for end < len(suns) && suns[end].ramp == suns[start].ramp {
			end++
		}
		ramp := r.store.texture(suns[start].ramp)
		verts := r.scratch.vertices[:0]
		for _, s := range suns[start:end] {
			extra := [4]float32{s.noise.Rotation, s.noise.DriftX, s.noise.DriftY, 0}
			verts = appendBillboard(verts, common.BillboardCorners(s.position, s.radius, s.radius, invView), extra)
		}
		r.scratch.vertices = verts
		b.DrawBillboards(ramp.gpu, noise, verts, uint32((end-start)*6))
		r.frameTriangles += uint32(end-start) * 2
		start = end
	}
}

// coronaPass draws additive glow billboards twice the sun radius, pulled toward the camera
// so they do not intersect the sun sphere.
func (r *renderer) coronaPass() {
	b := r.backend
	b.BeginPass(PassCoronas)
	defer b.EndPass()

	suns := r.batch.liveSuns()
	if len(suns) == 0 || r.noiseTexture == nil {
		return
	}
	b.SetState(DrawState{
		Program:    ProgramCorona,
		Depth:      DepthLess,
		ColorWrite: true,
		Blend:      BlendAdditive,
	})
	invView := r.globals.invView
	verts := r.scratch.vertices[:0]
	for _, s := range suns {
		c := common.TowardCamera(s.position, s.radius, invView)
		extra := [4]float32{s.position[0], s.position[1], s.position[2], s.radius}
		verts = appendBillboard(verts, common.BillboardCorners(c, 2*s.radius, 2*s.radius, invView), extra)
	}
	r.scratch.vertices = verts
	b.DrawBillboards(nil, nil, verts, uint32(len(suns)*6))
}

// sfxPass draws one effect layer sorted by texture pair and colour, in sub-batches of at
// most MaxSFXTrianglesPerBatch triangles.
func (r *renderer) sfxPass(pass PassID, layer SFXLayer) {
	b := r.backend
	b.BeginPass(pass)
	defer b.EndPass()

	batches := r.batch.consumeSFX(layer)
	if len(batches) == 0 {
		return
	}
	slices.SortStableFunc(batches, compareSFX)

	state := DrawState{Program: ProgramSFXEmissive, Depth: DepthLess, ColorWrite: true, Blend: BlendAdditive}
	if layer == SFXDiffuse {
		state.Program = ProgramSFXDiffuse
		state.Blend = BlendAlpha
	}
	b.SetState(state)

	for start := 0; start < len(batches); {
		end := start + 1
		for end < len(batches) && compareSFX(batches[start], batches[end]) == 0 {
			end++
		}
		tris := r.scratch.sfx[:0]
		for _, s := range batches[start:end] {
			tris = append(tris, s.triangles...)
		}
		r.scratch.sfx = tris

		head := batches[start]
		t1, t2 := r.store.texture(head.tex1), r.store.texture(head.tex2)
		tint := [4]float32{
			float32(head.color.R) / 255, float32(head.color.G) / 255,
			float32(head.color.B) / 255, float32(head.color.A) / 255,
		}
		for lo := 0; lo < len(tris); lo += MaxSFXTrianglesPerBatch {
			hi := min(lo+MaxSFXTrianglesPerBatch, len(tris))
			verts := r.scratch.vertices[:0]
			for _, tri := range tris[lo:hi] {
				for _, v := range tri.Vert {
					verts = appendFXVertex(verts, mgl32.Vec3{v.X, v.Y, v.Z}, v.U, v.V, tint)
				}
			}
			r.scratch.vertices = verts
			b.DrawBillboards(t1.gpu, t2.gpu, verts, uint32((hi-lo)*3))
		}
		r.frameTriangles += uint32(len(tris))
		start = end
	}
}

func compareSFX(a, b sfxBatch) int {
	return cmp.Or(
		cmp.Compare(a.tex1, b.tex1),
		cmp.Compare(a.tex2, b.tex2),
		cmp.Compare(common.PackBGRA(a.color), common.PackBGRA(b.color)),
	)
}

// compositionPass draws the skybox behind all geometry, then adds the lit scene.
func (r *renderer) compositionPass() {
	b := r.backend
	b.BeginPass(PassComposition)
	if sky := r.store.activeSkybox(); sky != nil {
		b.SetState(DrawState{Program: ProgramSkybox, Depth: DepthLessEqual, ColorWrite: true})
		b.DrawSkybox(sky)
	}
	b.SetState(DrawState{Program: ProgramComposition, Depth: DepthAlways, ColorWrite: true, Blend: BlendAdditive})
	b.DrawFullscreen()
	b.EndPass()
}

// defaultDynState is restored after every dynamic buffer draw.
var defaultDynState = DrawState{
	Program:    ProgramDynBuffer,
	Depth:      DepthLess,
	DepthWrite: true,
	ColorWrite: true,
}

// dynBufferPass draws queued dynamic buffers in submission order and returns how many
// queue entries it consumed.
func (r *renderer) dynBufferPass() int {
	b := r.backend
	g := r.globals
	b.BeginPass(PassDynBuffers)
	defer b.EndPass()

	for _, d := range r.batch.dyn {
		p := d.params
		state := defaultDynState
		if p.Strips {
			state.Topology = TopologyTriangleStrip
		}
		if !p.ReadZ {
			state.Depth = DepthAlways
		}
		state.DepthWrite = p.WriteZ
		if p.AlphaBlend {
			state.Blend = BlendAlpha
		}

		m := p.Transform
		if p.ApplyView {
			m = g.view.Mul4(m)
		}
		if p.ApplyProj {
			m = g.proj.Mul4(m)
		}

		b.SetState(state)
		b.DrawDynBuffer(d.buffer.gpu, r.store.texture(p.Texture).gpu, encodeDynUniform(r.scratch.uniform[:], m, p.Color), p.IndexCount)
		b.SetState(defaultDynState)
		d.buffer.queued--
		r.frameTriangles += p.IndexCount / 3
	}
	return len(r.batch.dyn)
}

// postEffectPass applies the accumulated warp offsets to the composed scene.
func (r *renderer) postEffectPass() {
	b := r.backend
	b.BeginPass(PassPostEffect)
	b.SetState(DrawState{Program: ProgramPostEffect, ColorWrite: true})
	b.DrawFullscreen()
	b.EndPass()
}

// screenQuadPass draws overlay batches in submission order, split into draws of at most
// MaxQuadsPerBatch quads.
func (r *renderer) screenQuadPass() {
	b := r.backend
	b.BeginPass(PassScreenQuads)
	defer b.EndPass()

	batches := r.batch.liveQuads()
	if len(batches) == 0 {
		return
	}
	b.SetState(DrawState{Program: ProgramScreenQuad, ColorWrite: true, Blend: BlendAlpha})
	for _, qb := range batches {
		tex := r.store.texture(qb.texture)
		for lo := 0; lo < len(qb.quads); lo += MaxQuadsPerBatch {
			hi := min(lo+MaxQuadsPerBatch, len(qb.quads))
			verts := r.scratch.vertices[:0]
			for i := lo; i < hi; i++ {
				verts = appendQuad(verts, &qb.quads[i])
			}
			r.scratch.vertices = verts
			b.DrawScreenQuads(tex.gpu, verts, uint32(hi-lo))
			r.frameTriangles += uint32(hi-lo) * 2
		}
	}
}

// appendBillboard appends two triangles covering the corners (top-left, bottom-left,
// top-right, bottom-right) with uv spanning [-1, 1].
func appendBillboard(dst []byte, c [4]mgl32.Vec3, extra [4]float32) []byte {
	dst = appendFXVertex(dst, c[0], -1, 1, extra)
	dst = appendFXVertex(dst, c[1], -1, -1, extra)
	dst = appendFXVertex(dst, c[2], 1, 1, extra)
	dst = appendFXVertex(dst, c[2], 1, 1, extra)
	dst = appendFXVertex(dst, c[1], -1, -1, extra)
	dst = appendFXVertex(dst, c[3], 1, -1, extra)
	return dst
}

// noiseVolume joins the background noise generation on first use and uploads the volume.
func (r *renderer) noiseVolume() GPUTexture {
	if r.noiseTexture != nil || r.noiseFailed {
		return r.noiseTexture
	}
	data := r.noise.join()
	tex, err := r.backend.CreateVolumeTexture(r.noise.size, data)
	if err != nil {
		r.log.Error("renderer: noise volume upload failed, suns disabled", "error", err)
		r.noiseFailed = true
		return nil
	}
	r.noiseTexture = tex
	return tex
}
