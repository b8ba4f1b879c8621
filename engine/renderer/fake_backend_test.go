package renderer

import (
	"errors"
	"fmt"
	"image/color"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

type fakeTexture struct {
	levels        int
	width, height uint32
	sampling      TextureSampling
	cube          bool
	volume        bool
	released      int
}

func (t *fakeTexture) Release() { t.released++ }

type fakeMesh struct {
	vertices, indices []byte
	released          int
}

func (m *fakeMesh) Release() { m.released++ }

type fakeDynBuffer struct {
	maxVertices, maxIndices uint32
	streams                 [4][]byte
	writes                  [4]int
	lastWrite               [4]int
	released                int
}

func (b *fakeDynBuffer) Release() { b.released++ }

// fakeCall is one recorded draw or state change.
type fakeCall struct {
	op       string
	pass     PassID
	state    DrawState
	ref      uint32
	count    uint32
	indices  uint32
	tex0     GPUTexture
	tex1     GPUTexture
	data     []byte
	viewport Viewport
}

// fakeBackend records what the pass executor asks of the GPU.
type fakeBackend struct {
	configs     []TargetConfig
	presentMode PresentMode
	textures    []*fakeTexture
	meshes      []*fakeMesh
	dynBuffers  []*fakeDynBuffer
	volumes     []*fakeTexture
	volumeData  []byte

	globals      []byte
	globalWrites int

	frames int
	calls  []fakeCall
	misuse []string

	inPass     bool
	pass       PassID
	state      DrawState
	stencilRef uint32

	failTextures  bool
	failFrame     error
	failConfigure error
	released      int
}

var _ RendererBackend = &fakeBackend{}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) record(c fakeCall) {
	if !b.inPass && c.op != "EndFrame" && c.op != "BeginPass" {
		b.misuse = append(b.misuse, fmt.Sprintf("%s outside a pass", c.op))
	}
	c.pass, c.state, c.ref = b.pass, b.state, b.stencilRef
	b.calls = append(b.calls, c)
}

func (b *fakeBackend) Configure(cfg TargetConfig) error {
	if b.failConfigure != nil {
		return b.failConfigure
	}
	b.configs = append(b.configs, cfg)
	return nil
}

func (b *fakeBackend) SetPresentMode(mode PresentMode) { b.presentMode = mode }

func (b *fakeBackend) CreateTexture(levels []*common.TextureStagingData, sampling TextureSampling) (GPUTexture, error) {
	if b.failTextures {
		return nil, errors.New("out of texture memory")
	}
	t := &fakeTexture{levels: len(levels), width: levels[0].Width, height: levels[0].Height, sampling: sampling}
	b.textures = append(b.textures, t)
	return t, nil
}

func (b *fakeBackend) CreateCubemap(faces [6]*common.TextureStagingData) (GPUTexture, error) {
	for i, f := range faces {
		if err := f.Validate(4); err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
	}
	t := &fakeTexture{levels: 1, width: faces[0].Width, height: faces[0].Height, cube: true}
	b.textures = append(b.textures, t)
	return t, nil
}

func (b *fakeBackend) CreateVolumeTexture(size uint32, rgba []byte) (GPUTexture, error) {
	t := &fakeTexture{levels: 1, width: size, height: size, volume: true}
	b.volumes = append(b.volumes, t)
	b.volumeData = append([]byte(nil), rgba...)
	return t, nil
}

func (b *fakeBackend) CreateMesh(vertices, indices []byte) (GPUMesh, error) {
	m := &fakeMesh{vertices: append([]byte(nil), vertices...), indices: append([]byte(nil), indices...)}
	b.meshes = append(b.meshes, m)
	return m, nil
}

func (b *fakeBackend) CreateDynBuffer(maxVertices, maxIndices uint32) (GPUDynBuffer, error) {
	d := &fakeDynBuffer{maxVertices: maxVertices, maxIndices: maxIndices}
	d.streams[DynStreamPositions] = make([]byte, maxVertices*dynPositionSize)
	d.streams[DynStreamUVs] = make([]byte, maxVertices*dynUVSize)
	d.streams[DynStreamColors] = make([]byte, maxVertices*dynColorSize)
	d.streams[DynStreamIndices] = make([]byte, (maxIndices*dynIndexSize+3)&^3)
	b.dynBuffers = append(b.dynBuffers, d)
	return d, nil
}

func (b *fakeBackend) WriteDynBuffer(buf GPUDynBuffer, stream DynStream, data []byte) {
	d := buf.(*fakeDynBuffer)
	if len(data) > len(d.streams[stream]) {
		panic(fmt.Sprintf("write of %d bytes overflows stream %d of %d bytes", len(data), stream, len(d.streams[stream])))
	}
	copy(d.streams[stream], data)
	d.writes[stream]++
	d.lastWrite[stream] = len(data)
}

func (b *fakeBackend) WriteGlobals(data []byte) {
	b.globals = append(b.globals[:0], data...)
	b.globalWrites++
}

func (b *fakeBackend) BeginFrame() error {
	b.frames++
	b.calls = b.calls[:0]
	return nil
}

func (b *fakeBackend) BeginPass(pass PassID) {
	if b.inPass {
		b.misuse = append(b.misuse, fmt.Sprintf("%s begun inside %s", pass, b.pass))
	}
	b.inPass, b.pass = true, pass
	b.state = DrawState{}
	b.record(fakeCall{op: "BeginPass"})
}

func (b *fakeBackend) SetState(state DrawState) { b.state = state }

func (b *fakeBackend) SetStencilReference(ref uint32) {
	b.stencilRef = ref
	b.record(fakeCall{op: "SetStencilReference"})
}

func (b *fakeBackend) DrawMesh(mesh GPUMesh, diffuse, normals GPUTexture, instances []byte, instanceCount, indexCount uint32) {
	b.record(fakeCall{op: "DrawMesh", count: instanceCount, indices: indexCount, tex0: diffuse, tex1: normals,
		data: append([]byte(nil), instances...)})
}

func (b *fakeBackend) DrawLight(uniform []byte) {
	b.record(fakeCall{op: "DrawLight", data: append([]byte(nil), uniform...)})
}

func (b *fakeBackend) DrawFullscreen() { b.record(fakeCall{op: "DrawFullscreen"}) }

func (b *fakeBackend) DrawSkybox(cube GPUTexture) {
	b.record(fakeCall{op: "DrawSkybox", tex0: cube})
}

func (b *fakeBackend) DrawBillboards(tex0, tex1 GPUTexture, vertices []byte, vertexCount uint32) {
	b.record(fakeCall{op: "DrawBillboards", count: vertexCount, tex0: tex0, tex1: tex1,
		data: append([]byte(nil), vertices...)})
}

func (b *fakeBackend) DrawDynBuffer(buf GPUDynBuffer, tex GPUTexture, uniform []byte, indexCount uint32) {
	b.record(fakeCall{op: "DrawDynBuffer", indices: indexCount, tex0: tex, data: append([]byte(nil), uniform...)})
}

func (b *fakeBackend) DrawScreenQuads(tex GPUTexture, vertices []byte, quadCount uint32) {
	b.record(fakeCall{op: "DrawScreenQuads", count: quadCount, tex0: tex, data: append([]byte(nil), vertices...)})
}

func (b *fakeBackend) EndPass() {
	if !b.inPass {
		b.misuse = append(b.misuse, "EndPass without a pass")
	}
	b.inPass = false
}

func (b *fakeBackend) EndFrame(viewport Viewport) error {
	if b.inPass {
		b.misuse = append(b.misuse, fmt.Sprintf("EndFrame inside %s", b.pass))
	}
	b.record(fakeCall{op: "EndFrame", viewport: viewport})
	return b.failFrame
}

func (b *fakeBackend) Release() { b.released++ }

// ops returns the recorded calls of one kind in order.
func (b *fakeBackend) ops(op string) []fakeCall {
	var out []fakeCall
	for _, c := range b.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// passes returns the passes begun during the last frame.
func (b *fakeBackend) passes() []PassID {
	var out []PassID
	for _, c := range b.ops("BeginPass") {
		out = append(out, c.pass)
	}
	return out
}

type fakeSurface struct {
	w, h int
}

func (s *fakeSurface) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return nil }
func (s *fakeSurface) Width() int                                 { return s.w }
func (s *fakeSurface) Height() int                                { return s.h }

// newTestRenderer builds an 800×600 renderer over a recording backend.
func newTestRenderer(t *testing.T, opts ...RendererBuilderOption) (*renderer, *fakeBackend) {
	t.Helper()
	fb := newFakeBackend()
	opts = append([]RendererBuilderOption{withBackend(fb), withNoiseSize(4), WithNoiseWorkers(2)}, opts...)
	r, err := NewRenderer(BackendTypeWGPU, &fakeSurface{w: 800, h: 600}, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r.(*renderer), fb
}

// frame runs draw inside one StartScene/EndScene pair.
func frame(t *testing.T, r Renderer, draw func()) {
	t.Helper()
	if err := r.StartScene(); err != nil {
		t.Fatalf("StartScene: %v", err)
	}
	if draw != nil {
		draw()
	}
	if err := r.EndScene(); err != nil {
		t.Fatalf("EndScene: %v", err)
	}
}

// testMesh is a MeshSource over in-memory data.
type testMesh struct {
	name     string
	geom     *MeshGeometry
	err      error
	diffuse  PixelSource
	normals  PixelSource
	geomCall int
}

func (m *testMesh) Name() string { return m.name }

func (m *testMesh) Geometry() (*MeshGeometry, error) {
	m.geomCall++
	return m.geom, m.err
}

func (m *testMesh) DiffuseSpecular() PixelSource { return m.diffuse }
func (m *testMesh) NormalsEmissive() PixelSource { return m.normals }

// tetrahedron returns a four-triangle mesh with solid 2×2 textures.
func tetrahedron() *testMesh {
	return &testMesh{
		name: "tetrahedron",
		geom: &MeshGeometry{
			Vertices: []MeshVertex{
				{Position: [3]float32{0, 1, 0}},
				{Position: [3]float32{-1, -1, 1}},
				{Position: [3]float32{1, -1, 1}},
				{Position: [3]float32{0, -1, -1}},
			},
			Indices:  []uint32{0, 1, 2, 0, 2, 3, 0, 3, 1, 1, 3, 2},
			Topology: TopologyTriangleList,
		},
		diffuse: solidPixels(2, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255}),
		normals: solidPixels(2, 2, color.RGBA{R: 128, G: 128, B: 255}),
	}
}

// instancesAt returns n instance records spread along the x axis in front of the camera.
func instancesAt(n int) []InstanceRecord {
	out := make([]InstanceRecord, n)
	for i := range out {
		out[i] = NewInstanceRecord(mgl32.Translate3D(float32(i), 0, -10))
	}
	return out
}

// rgbFace returns a solid square cubemap face.
func rgbFace(size uint32, v byte) *common.TextureStagingData {
	px := make([]byte, int(size*size)*3)
	for i := range px {
		px[i] = v
	}
	return &common.TextureStagingData{Data: px, Width: size, Height: size}
}
