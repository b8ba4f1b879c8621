package renderer

import (
	"image/color"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

func TestEveryPassRunsInOrder(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, nil)

	want := []PassID{
		PassModel, PassLighting, PassSunSpheres, PassCoronas, PassEmissiveSFX,
		PassComposition, PassDynBuffers, PassDiffuseSFX, PassPostEffect, PassScreenQuads,
	}
	if got := fb.passes(); !slices.Equal(got, want) {
		t.Fatalf("passes = %v, want %v", got, want)
	}
	if n := len(fb.ops("EndFrame")); n != 1 {
		t.Errorf("EndFrame called %d times", n)
	}
	if fb.calls[len(fb.calls)-1].op != "EndFrame" {
		t.Error("EndFrame is not the last call of the frame")
	}
	if len(fb.misuse) != 0 {
		t.Errorf("backend misuse: %v", fb.misuse)
	}

	// Composition and post effect always draw.
	full := fb.ops("DrawFullscreen")
	if len(full) != 2 || full[0].pass != PassComposition || full[1].pass != PassPostEffect {
		t.Errorf("fullscreen draws = %+v", full)
	}
}

func TestModelPassChunksInstances(t *testing.T) {
	r, fb := newTestRenderer(t)
	mesh := r.LoadMesh(tetrahedron())

	frame(t, r, func() {
		r.DrawMeshInstances(mesh, instancesAt(40))
		r.DrawMeshInstances(mesh, instancesAt(30))
	})

	var counts []uint32
	for _, c := range fb.ops("DrawMesh") {
		counts = append(counts, c.count)
		if c.pass != PassModel || c.ref != stencilMesh {
			t.Errorf("mesh drawn in %v with stencil ref %d", c.pass, c.ref)
		}
		if c.state.Stencil != StencilWriteMesh || !c.state.DepthWrite {
			t.Errorf("mesh state = %+v", c.state)
		}
	}
	if want := []uint32{32, 32, 6}; !slices.Equal(counts, want) {
		t.Errorf("instance chunks = %v, want %v", counts, want)
	}
	if got := r.TriangleCount(); got != 70*4 {
		t.Errorf("TriangleCount = %d, want %d", got, 70*4)
	}
}

func TestModelPassGroupsByMeshInSubmissionOrder(t *testing.T) {
	r, fb := newTestRenderer(t)
	a := r.LoadMesh(tetrahedron())
	b := r.LoadMesh(tetrahedron())

	frame(t, r, func() {
		r.DrawMeshInstances(b, instancesAt(1))
		r.DrawMeshInstances(a, instancesAt(2))
		r.DrawMeshInstances(b, instancesAt(3))
	})

	draws := fb.ops("DrawMesh")
	if len(draws) != 2 {
		t.Fatalf("DrawMesh called %d times, want 2", len(draws))
	}
	if draws[0].count != 4 || draws[1].count != 2 {
		t.Errorf("draw counts = %d, %d; want 4, 2", draws[0].count, draws[1].count)
	}
	if draws[0].tex0 != fb.textures[2] {
		t.Error("first draw does not use the textures of the first submitted mesh")
	}
}

func TestInstanceRecordsAreCopied(t *testing.T) {
	r, fb := newTestRenderer(t)
	mesh := r.LoadMesh(tetrahedron())

	frame(t, r, func() {
		inst := instancesAt(1)
		inst[0].SetTeamHue(1)
		r.DrawMeshInstances(mesh, inst)
		inst[0] = InstanceRecord{}
	})

	data := fb.ops("DrawMesh")[0].data
	if got := le.Uint32(data[64:]); got != 0xFFFFFFFF {
		t.Errorf("team hue = %#x, want 0xffffffff", got)
	}
	if le.Uint32(data[56:]) != math.Float32bits(-10) {
		t.Error("instance transform changed after submission")
	}
}

func TestPointLightOutsideVolumeStencilSequence(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() {
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, -50}, Radius: 5, Color: mgl32.Vec3{1, 1, 1}})
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{5, 0, -60}, Radius: 5, Color: mgl32.Vec3{1, 1, 1}})
	})

	lights := fb.ops("DrawLight")
	if len(lights) != 4 {
		t.Fatalf("DrawLight called %d times, want 4", len(lights))
	}
	for i, c := range lights {
		wantRef := uint32(1 + i/2)
		if c.ref != wantRef {
			t.Errorf("draw %d stencil ref = %d, want %d", i, c.ref, wantRef)
		}
		if i%2 == 0 {
			if c.state.Stencil != StencilMarkLight || c.state.Cull != CullFront || c.state.Depth != DepthGreaterEqual || c.state.ColorWrite {
				t.Errorf("mark draw %d state = %+v", i, c.state)
			}
		} else {
			if c.state.Stencil != StencilMatchLight || c.state.Cull != CullBack || c.state.Depth != DepthLessEqual ||
				!c.state.ColorWrite || c.state.Blend != BlendAdditive {
				t.Errorf("shade draw %d state = %+v", i, c.state)
			}
		}
	}

	u := lights[0].data
	if len(u) != lightUniformSize || mathFloat(u[12:]) != 5 || mathFloat(u[28:]) != 1 {
		t.Errorf("light uniform = %v", u)
	}
}

func TestPointLightAroundCamera(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() {
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, -1}, Radius: 5, Color: mgl32.Vec3{1, 1, 1}})
	})

	lights := fb.ops("DrawLight")
	if len(lights) != 1 {
		t.Fatalf("DrawLight called %d times, want 1", len(lights))
	}
	s := lights[0].state
	if s.Stencil != StencilBelowLight || s.Cull != CullFront || s.Depth != DepthGreaterEqual || s.Blend != BlendAdditive {
		t.Errorf("inside-volume state = %+v", s)
	}
}

func TestPointLightCulledAndIgnored(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() {
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, 50}, Radius: 2, Color: mgl32.Vec3{1, 1, 1}})
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, -50}, Radius: 0, Color: mgl32.Vec3{1, 1, 1}})
		r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, -50}, Radius: -3, Color: mgl32.Vec3{1, 1, 1}})
	})
	if n := len(fb.ops("DrawLight")); n != 0 {
		t.Errorf("DrawLight called %d times for culled or empty lights", n)
	}
}

func TestLightStencilIDsSaturate(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() {
		for i := 0; i < MaxLightStencil+5; i++ {
			r.DrawPointLight(PointLight{Position: mgl32.Vec3{0, 0, -100}, Radius: 1, Color: mgl32.Vec3{1, 1, 1}})
		}
	})

	lights := fb.ops("DrawLight")
	if len(lights) != 2*(MaxLightStencil+5) {
		t.Fatalf("DrawLight called %d times", len(lights))
	}
	for i := 0; i < len(lights); i += 2 {
		want := uint32(min(1+i/2, MaxLightStencil))
		if lights[i].ref != want || lights[i+1].ref != want {
			t.Fatalf("light %d refs = %d, %d; want %d", i/2, lights[i].ref, lights[i+1].ref, want)
		}
	}
}

func TestDirectionalLightsUseMeshStencil(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() {
		r.DrawDirectionalLight(DirectionalLight{Direction: mgl32.Vec3{0, 0, -3}, Color: mgl32.Vec3{1, 1, 1}})
		r.DrawDirectionalLight(DirectionalLight{Direction: mgl32.Vec3{1, 0, 0}, Color: mgl32.Vec3{0.5, 0.5, 0.5}})
	})

	lights := fb.ops("DrawLight")
	if len(lights) != 2 {
		t.Fatalf("DrawLight called %d times, want 2", len(lights))
	}
	for _, c := range lights {
		if c.ref != stencilClear || c.state.Stencil != StencilMeshOnly || c.state.Program != ProgramDirectionalLight {
			t.Errorf("directional draw ref %d state %+v", c.ref, c.state)
		}
		if mathFloat(c.data[28:]) != 0 {
			t.Error("directional light flagged as point light")
		}
	}
	if z := mathFloat(lights[0].data[8:]); z != -1 {
		t.Errorf("direction not normalised: z = %v", z)
	}
}

func TestScreenQuadBatchesFollowPageChanges(t *testing.T) {
	r, fb := newTestRenderer(t)
	a := r.LoadTexture(solidPixels(2, 2, color.RGBA{R: 255, A: 255}))
	b := r.LoadTexture(solidPixels(2, 2, color.RGBA{G: 255, A: 255}))
	q := ScreenQuad{Screen: Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}, Tex: TexRect{0, 0, 1, 1}}
	q.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 255})

	frame(t, r, func() {
		r.DrawScreenQuads(a, []ScreenQuad{q})
		r.DrawScreenQuads(a, []ScreenQuad{q, q})
		r.DrawScreenQuads(b, []ScreenQuad{q})
		r.DrawScreenQuads(a, []ScreenQuad{q})
	})

	draws := fb.ops("DrawScreenQuads")
	if len(draws) != 3 {
		t.Fatalf("DrawScreenQuads called %d times, want 3", len(draws))
	}
	ta, tb := r.store.texture(a).gpu, r.store.texture(b).gpu
	want := []struct {
		tex   GPUTexture
		count uint32
	}{{ta, 3}, {tb, 1}, {ta, 1}}
	for i, w := range want {
		if draws[i].tex0 != w.tex || draws[i].count != w.count {
			t.Errorf("batch %d = %d quads, want %d (texture match %v)", i, draws[i].count, w.count, draws[i].tex0 == w.tex)
		}
	}
	if got := r.TriangleCount(); got != 10 {
		t.Errorf("TriangleCount = %d, want 10", got)
	}

	v := draws[0].data
	if len(v) != 3*quadVerticesPerQuad*quadVertexSize {
		t.Fatalf("quad upload = %d bytes", len(v))
	}
	if x, y := mathFloat(v[0:]), mathFloat(v[4:]); x != -0.5 || y != 0.5 {
		t.Errorf("top-left corner in clip space = (%v, %v), want (-0.5, 0.5)", x, y)
	}
}

func TestScreenQuadsSplitAtBatchLimit(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	quads := make([]ScreenQuad, MaxQuadsPerBatch+44)

	frame(t, r, func() { r.DrawScreenQuads(tex, quads) })

	var counts []uint32
	for _, c := range fb.ops("DrawScreenQuads") {
		counts = append(counts, c.count)
	}
	if want := []uint32{MaxQuadsPerBatch, 44}; !slices.Equal(counts, want) {
		t.Errorf("quad draws = %v, want %v", counts, want)
	}
}

func mathFloat(b []byte) float32 {
	return math.Float32frombits(le.Uint32(b))
}

func fxTriangles(n int) []FXTriangle {
	tris := make([]FXTriangle, n)
	for i := range tris {
		tris[i].Vert[1].X = 1
		tris[i].Vert[2].Y = 1
	}
	return tris
}

func TestSFXMergesMatchingBatches(t *testing.T) {
	r, fb := newTestRenderer(t)
	t1 := r.LoadTexture(solidPixels(2, 2, color.RGBA{R: 255, A: 255}))
	t2 := r.LoadTexture(solidPixels(2, 2, color.RGBA{G: 255, A: 255}))
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}

	frame(t, r, func() {
		r.DrawSFX(SFXEmissive, t1, t2, white, fxTriangles(600))
		r.DrawSFX(SFXEmissive, t2, t1, white, fxTriangles(10))
		r.DrawSFX(SFXEmissive, t1, t2, red, fxTriangles(5))
		r.DrawSFX(SFXEmissive, t1, t2, white, fxTriangles(600))
		r.DrawSFX(SFXDiffuse, t1, t2, white, fxTriangles(7))
	})

	var emissive, diffuse []uint32
	for _, c := range fb.ops("DrawBillboards") {
		switch c.pass {
		case PassEmissiveSFX:
			emissive = append(emissive, c.count)
			if c.state.Blend != BlendAdditive {
				t.Errorf("emissive blend = %v", c.state.Blend)
			}
		case PassDiffuseSFX:
			diffuse = append(diffuse, c.count)
			if c.state.Blend != BlendAlpha || c.state.Program != ProgramSFXDiffuse {
				t.Errorf("diffuse state = %+v", c.state)
			}
		}
	}
	// Sorted by texture pair then colour: (t1,t2,red) packs below (t1,t2,white).
	want := []uint32{5 * 3, MaxSFXTrianglesPerBatch * 3, (1200 - MaxSFXTrianglesPerBatch) * 3, 10 * 3}
	if !slices.Equal(emissive, want) {
		t.Errorf("emissive draws = %v, want %v", emissive, want)
	}
	if !slices.Equal(diffuse, []uint32{21}) {
		t.Errorf("diffuse draws = %v, want [21]", diffuse)
	}
	if got := r.TriangleCount(); got != 1215+7 {
		t.Errorf("TriangleCount = %d, want %d", got, 1215+7)
	}

	frame(t, r, nil)
	if n := len(fb.ops("DrawBillboards")); n != 0 {
		t.Errorf("effects drawn again in the next frame: %d draws", n)
	}
}

func TestSFXCarriesTint(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))

	frame(t, r, func() {
		r.DrawSFX(SFXEmissive, tex, tex, color.RGBA{R: 255, G: 0, B: 51, A: 255}, fxTriangles(1))
	})

	v := fb.ops("DrawBillboards")[0].data
	if len(v) != 3*fxVertexSize {
		t.Fatalf("vertex upload = %d bytes", len(v))
	}
	if red, green, blue := mathFloat(v[20:]), mathFloat(v[24:]), mathFloat(v[28:]); red != 1 || green != 0 || blue != 0.2 {
		t.Errorf("tint = (%v, %v, %v)", red, green, blue)
	}
}

func TestSunsJoinNoiseOnFirstUse(t *testing.T) {
	r, fb := newTestRenderer(t)
	rampA := r.LoadSunRamp(solidPixels(8, 1, color.RGBA{R: 255, A: 255}))
	rampB := r.LoadSunRamp(solidPixels(8, 1, color.RGBA{B: 255, A: 255}))

	frame(t, r, nil)
	if len(fb.volumes) != 0 {
		t.Fatal("noise volume uploaded before any sun was drawn")
	}

	frame(t, r, func() {
		r.DrawSun(rampB, SunNoise{}, mgl32.Vec3{0, 0, -20}, 2)
		r.DrawSun(rampA, SunNoise{Rotation: 1}, mgl32.Vec3{5, 0, -20}, 2)
		r.DrawSun(rampB, SunNoise{}, mgl32.Vec3{-5, 0, -20}, 2)
		r.DrawSun(rampA, SunNoise{}, mgl32.Vec3{0, 0, -20}, 0)
	})

	if len(fb.volumes) != 1 || fb.volumes[0].width != 4 || len(fb.volumeData) != 4*4*4*4 {
		t.Fatalf("noise volumes = %d, data %d bytes", len(fb.volumes), len(fb.volumeData))
	}

	var sunCounts []uint32
	var coronas []fakeCall
	for _, c := range fb.ops("DrawBillboards") {
		switch c.pass {
		case PassSunSpheres:
			sunCounts = append(sunCounts, c.count)
			if c.tex1 != fb.volumes[0] {
				t.Error("sun draw without the noise volume")
			}
		case PassCoronas:
			coronas = append(coronas, c)
		}
	}
	// Grouped by ramp handle: A first, then both B suns.
	if !slices.Equal(sunCounts, []uint32{6, 12}) {
		t.Errorf("sun draws = %v, want [6 12]", sunCounts)
	}
	if len(coronas) != 1 || coronas[0].count != 18 || coronas[0].state.Blend != BlendAdditive {
		t.Errorf("corona draws = %+v", coronas)
	}
	if got := r.TriangleCount(); got != 6 {
		t.Errorf("TriangleCount = %d, want 6", got)
	}

	frame(t, r, func() { r.DrawSun(rampA, SunNoise{}, mgl32.Vec3{0, 0, -20}, 1) })
	if len(fb.volumes) != 1 {
		t.Errorf("noise volume uploaded %d times", len(fb.volumes))
	}
}

func TestSunNeedsValidRamp(t *testing.T) {
	r, fb := newTestRenderer(t)
	frame(t, r, func() { r.DrawSun(TextureHandle(9), SunNoise{}, mgl32.Vec3{0, 0, -20}, 1) })

	if n := len(fb.ops("DrawBillboards")); n != 0 {
		t.Errorf("sun with an unknown ramp drawn %d times", n)
	}
	if len(fb.volumes) != 0 {
		t.Error("noise joined for a refused sun")
	}
}

func TestCompositionDrawsSkybox(t *testing.T) {
	r, fb := newTestRenderer(t)
	faces := &common.CubemapStagingData{}
	for i := range faces.Images {
		faces.Images[i] = rgbFace(4, byte(i*40))
	}

	frame(t, r, nil)
	if n := len(fb.ops("DrawSkybox")); n != 0 {
		t.Fatalf("skybox drawn %d times before one was loaded", n)
	}

	if !r.LoadSkybox(faces) {
		t.Fatal("LoadSkybox failed")
	}
	frame(t, r, nil)
	sky := fb.ops("DrawSkybox")
	if len(sky) != 1 || sky[0].pass != PassComposition {
		t.Fatalf("skybox draws = %+v", sky)
	}
	cube := sky[0].tex0.(*fakeTexture)
	if !cube.cube || cube.width != 4 {
		t.Errorf("skybox texture = %+v", cube)
	}
	calls := fb.ops("DrawFullscreen")
	if calls[0].pass != PassComposition || calls[0].state.Program != ProgramComposition {
		t.Errorf("composition draw = %+v", calls[0])
	}

	r.EnableSkybox(false)
	frame(t, r, nil)
	if n := len(fb.ops("DrawSkybox")); n != 0 {
		t.Errorf("disabled skybox drawn %d times", n)
	}
}

func TestDynBufferDrawState(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	buf := uploadedDynBuffer(t, r)

	p := DefaultDynBufferDrawParams(buf, tex, 6)
	p.Strips = true
	p.ReadZ = false
	p.WriteZ = false
	p.AlphaBlend = true
	p.ApplyView, p.ApplyProj = false, false
	p.Transform = mgl32.Translate3D(1, 2, 3)
	p.Color = [4]float32{0.5, 0.25, 1, 1}

	frame(t, r, func() { r.DrawDynBuffer(p) })

	draws := fb.ops("DrawDynBuffer")
	if len(draws) != 1 {
		t.Fatalf("DrawDynBuffer called %d times", len(draws))
	}
	s := draws[0].state
	if s.Topology != TopologyTriangleStrip || s.Depth != DepthAlways || s.DepthWrite || s.Blend != BlendAlpha {
		t.Errorf("dynbuffer state = %+v", s)
	}
	u := draws[0].data
	if mathFloat(u[48:]) != 1 || mathFloat(u[52:]) != 2 || mathFloat(u[56:]) != 3 {
		t.Errorf("transform translation = %v", u[48:60])
	}
	if mathFloat(u[64:]) != 0.5 || mathFloat(u[68:]) != 0.25 {
		t.Errorf("colour = %v", u[64:80])
	}
}

func TestDynBufferAppliesCamera(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	buf := uploadedDynBuffer(t, r)

	frame(t, r, func() { r.DrawDynBuffer(DefaultDynBufferDrawParams(buf, tex, 6)) })

	u := fb.ops("DrawDynBuffer")[0].data
	want := r.ProjectionMatrix().Mul4(r.ViewMatrix())
	for i := range want {
		if got := mathFloat(u[i*4:]); mgl32.Abs(got-want[i]) > 1e-6 {
			t.Fatalf("transform[%d] = %v, want %v", i, got, want[i])
		}
	}
}
