package renderer

import (
	"fmt"
	"image/color"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Surface is the presentation target the renderer draws into. window.Window implements it.
type Surface interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	log         *slog.Logger
	contract    *contractChecker

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	presentMode          PresentMode
	quality              Quality
	debugAssertions      bool
	noiseWorkers         int
	noiseSize            uint32
	fixedBufferW         uint32
	fixedBufferH         uint32
	pendingAmbient       *mgl32.Vec3
	pendingDebugMode     *DebugRenderMode

	state     FrameState
	pending   frameConfig
	committed frameConfig

	store   *resourceStore
	dyn     *dynBufferPool
	batch   *frameBatch
	globals *globalBlock
	scratch passScratch

	noise        *noiseTask
	noiseTexture GPUTexture
	noiseFailed  bool

	frameTriangles uint32
	triangles      uint32
}

// Renderer is the deferred multi-pass renderer.
//
// Resources are loaded while no scene is open and are referenced through opaque handles.
// A frame is recorded between StartScene and EndScene: every Draw call only batches work,
// and EndScene runs the fixed pass sequence and presents. Camera and viewport setters are
// pending until the next StartScene.
type Renderer interface {
	// LoadMesh uploads a mesh and its two textures.
	//
	// Parameters:
	//   - src: the geometry and texture provider
	//
	// Returns:
	//   - MeshHandle: a new non-zero handle, or InvalidMesh if the source is unusable or a scene is open
	LoadMesh(src MeshSource) MeshHandle

	// LoadTexture uploads a 2D texture sampled with the quality-dependent material sampler.
	//
	// Parameters:
	//   - src: a provider of 4-byte-per-pixel data
	//
	// Returns:
	//   - TextureHandle: a new non-zero handle, or InvalidTexture on failure or while a scene is open
	LoadTexture(src PixelSource) TextureHandle

	// LoadSunRamp uploads a colour ramp used to shade suns. Ramps are clamped and not mipmapped.
	LoadSunRamp(src PixelSource) TextureHandle

	// LoadSkybox replaces the active skybox. The previous skybox stays active on failure.
	//
	// Returns:
	//   - bool: true if the skybox was replaced
	LoadSkybox(src CubemapSource) bool

	// EnableSkybox turns skybox drawing on or off.
	EnableSkybox(enabled bool)

	// NewDynBuffer creates a dynamic buffer with fixed capacities.
	//
	// Parameters:
	//   - nVerts: vertex, UV and colour capacity
	//   - nIndices: index capacity
	//
	// Returns:
	//   - DynBuffer: the new buffer, unlocked and not yet uploaded
	//   - error: ErrDynBufferSize for zero capacities, or a backend allocation error
	NewDynBuffer(nVerts, nIndices uint32) (DynBuffer, error)

	// SetViewMatrix sets the camera view matrix for the next scene.
	SetViewMatrix(view mgl32.Mat4)

	// SetProjectionMatrix sets the projection matrix and its near plane distance for the next scene.
	// The projection must map depth to [0, 1]; see common.PerspectiveZO.
	SetProjectionMatrix(proj mgl32.Mat4, zNear float32)

	// SetSkyboxRotation sets the rotation applied to the skybox cubemap.
	SetSkyboxRotation(rot mgl32.Mat3)

	// SetViewport sets the presentation rectangle in surface pixels for the next scene.
	SetViewport(x, y int, width, height uint32)

	// Resize records a new surface size. The surface is reconfigured at the next StartScene.
	Resize(width, height int)

	// SetAmbient sets the ambient light colour added during composition.
	SetAmbient(r, g, b float32)

	// SetDebugRenderMode selects what the composition pass outputs.
	SetDebugRenderMode(mode DebugRenderMode)

	// StartScene commits pending camera and viewport changes and opens a frame.
	//
	// Returns:
	//   - error: ErrSceneOpen if a frame is already open, or a target reconfiguration error
	StartScene() error

	// EndScene executes every pass, presents the frame and closes it.
	//
	// Returns:
	//   - error: ErrSceneClosed if no frame is open, or a backend frame error
	EndScene() error

	// DrawMeshInstances queues instances of a mesh. The records are copied.
	DrawMeshInstances(h MeshHandle, instances []InstanceRecord)

	// DrawPointLight queues a point light.
	DrawPointLight(l PointLight)

	// DrawDirectionalLight queues a directional light.
	DrawDirectionalLight(l DirectionalLight)

	// DrawSun queues a sun billboard shaded by the given ramp texture.
	DrawSun(ramp TextureHandle, noise SunNoise, position mgl32.Vec3, radius float32)

	// DrawScreenQuads queues overlay quads drawn after everything else, in submission order.
	DrawScreenQuads(tex TextureHandle, quads []ScreenQuad)

	// DrawSFX queues effect triangles textured by tex1 × tex2 and tinted by c.
	DrawSFX(layer SFXLayer, tex1, tex2 TextureHandle, c color.RGBA, triangles []FXTriangle)

	// DrawDynBuffer queues a draw of an uploaded dynamic buffer.
	DrawDynBuffer(params DynBufferDrawParams)

	// TriangleCount returns the number of triangles drawn by the last completed frame.
	TriangleCount() uint32

	// ViewMatrix returns the committed view matrix.
	ViewMatrix() mgl32.Mat4

	// InverseViewMatrix returns the inverse of the committed view matrix.
	InverseViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the committed projection matrix.
	ProjectionMatrix() mgl32.Mat4

	// Unproject maps a viewport pixel and a depth in [0, 1] to world space using the committed camera.
	//
	// Returns:
	//   - mgl32.Vec3: the world-space point
	//   - bool: false if the viewport is empty or the point is at infinity
	Unproject(x, y, z float32) (mgl32.Vec3, bool)

	// Viewport returns the committed viewport.
	Viewport() Viewport

	// Quality returns the quality level chosen at construction.
	Quality() Quality

	// State reports whether a frame is open.
	State() FrameState

	// Release destroys every GPU resource. The renderer cannot be used afterwards.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type, drawing into surface.
//
// Parameters:
//   - backendType: the GPU backend to use
//   - surface: the presentation surface and its initial size
//   - options: functional options applied before the backend is created
//
// Returns:
//   - Renderer: the ready renderer with a Closed frame state
//   - error: an error if the GPU device or the render targets could not be created
func NewRenderer(backendType RendererBackendType, surface Surface, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:           &sync.Mutex{},
		backendType:  backendType,
		log:          newNopLogger(),
		presentMode:  PresentModeVSync,
		quality:      QualityHigh,
		noiseWorkers: runtime.NumCPU(),
		noiseSize:    defaultNoiseSize,
	}
	for _, opt := range options {
		opt(r)
	}
	r.contract = &contractChecker{log: r.log, panicOnViolation: r.debugAssertions}

	if r.backend == nil {
		switch backendType {
		case BackendTypeWGPU:
			fallthrough
		default:
			b, err := newWGPURendererBackend(surface.SurfaceDescriptor(), r.forceFallbackAdapter, r.log)
			if err != nil {
				return nil, fmt.Errorf("create backend: %w", err)
			}
			r.backend = b
		}
	}
	r.backend.SetPresentMode(r.presentMode)

	w, h := uint32(max(surface.Width(), 1)), uint32(max(surface.Height(), 1))
	cfg := defaultFrameConfig(w, h)
	if r.pendingAmbient != nil {
		cfg.ambient = *r.pendingAmbient
	}
	if r.pendingDebugMode != nil {
		cfg.debug = *r.pendingDebugMode
	}
	r.pending, r.committed = cfg, cfg

	if err := r.backend.Configure(r.targetConfig(cfg)); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("configure render targets: %w", err)
	}

	r.store = newResourceStore(r.backend, r.log, r.quality)
	r.dyn = newDynBufferPool(r.backend, r.contract)
	r.batch = newFrameBatch()
	r.globals = newGlobalBlock()
	bw, bh := r.bufferSize(cfg)
	r.globals.recompute(cfg, bw, bh, r.quality.superSample())
	r.noise = startNoiseTask(r.noiseSize, r.noiseWorkers)

	r.log.Info("renderer: ready", "width", w, "height", h, "quality", r.quality)
	return r, nil
}

// bufferSize returns the offscreen target size for a configuration.
func (r *renderer) bufferSize(cfg frameConfig) (uint32, uint32) {
	if r.fixedBufferW > 0 && r.fixedBufferH > 0 {
		return r.fixedBufferW, r.fixedBufferH
	}
	s := r.quality.superSample()
	return max(cfg.viewport.Width, 1) * s, max(cfg.viewport.Height, 1) * s
}

func (r *renderer) targetConfig(cfg frameConfig) TargetConfig {
	bw, bh := r.bufferSize(cfg)
	return TargetConfig{
		BufferWidth:   bw,
		BufferHeight:  bh,
		SurfaceWidth:  cfg.surfaceW,
		SurfaceHeight: cfg.surfaceH,
		Quality:       r.quality,
	}
}

// loadAllowed refuses resource loads while a frame is open.
func (r *renderer) loadAllowed(kind string) bool {
	if r.state == FrameOpen {
		r.log.Warn("renderer: load refused while a scene is open", "resource", kind)
		return false
	}
	return true
}

// drawAllowed refuses draw calls while no frame is open.
func (r *renderer) drawAllowed(call string) bool {
	if r.state != FrameOpen {
		return r.contract.violation("%s while no scene is open", call)
	}
	return true
}

func (r *renderer) LoadMesh(src MeshSource) MeshHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loadAllowed("mesh") {
		return InvalidMesh
	}
	return r.store.loadMesh(src)
}

func (r *renderer) LoadTexture(src PixelSource) TextureHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loadAllowed("texture") {
		return InvalidTexture
	}
	return r.store.loadTexture(src, SampleMaterial)
}

func (r *renderer) LoadSunRamp(src PixelSource) TextureHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loadAllowed("sun ramp") {
		return InvalidTexture
	}
	return r.store.loadTexture(src, SampleClamp)
}

func (r *renderer) LoadSkybox(src CubemapSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loadAllowed("skybox") {
		return false
	}
	return r.store.loadSkybox(src)
}

func (r *renderer) EnableSkybox(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.skyboxEnabled = enabled
}

func (r *renderer) NewDynBuffer(nVerts, nIndices uint32) (DynBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.dyn.create(nVerts, nIndices)
	if err != nil {
		return nil, fmt.Errorf("new dynbuffer %dx%d: %w", nVerts, nIndices, err)
	}
	return b, nil
}

func (r *renderer) SetViewMatrix(view mgl32.Mat4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.view = view
}

func (r *renderer) SetProjectionMatrix(proj mgl32.Mat4, zNear float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.proj = proj
	r.pending.zNear = zNear
}

func (r *renderer) SetSkyboxRotation(rot mgl32.Mat3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.skybox = rot
}

func (r *renderer) SetViewport(x, y int, width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.viewport = Viewport{X: x, Y: y, Width: width, Height: height}
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.surfaceW = uint32(max(width, 1))
	r.pending.surfaceH = uint32(max(height, 1))
}

func (r *renderer) SetAmbient(red, green, blue float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.ambient = mgl32.Vec3{red, green, blue}
}

func (r *renderer) SetDebugRenderMode(mode DebugRenderMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.debug = mode
}

func (r *renderer) StartScene() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == FrameOpen {
		return ErrSceneOpen
	}

	if next := r.pending; next != r.committed {
		if r.committed.targetsChanged(next) {
			if err := r.backend.Configure(r.targetConfig(next)); err != nil {
				return fmt.Errorf("reconfigure render targets: %w", err)
			}
			r.log.Debug("renderer: targets resized", "viewport", next.viewport, "surfaceW", next.surfaceW, "surfaceH", next.surfaceH)
		}
		r.committed = next
		bw, bh := r.bufferSize(next)
		r.globals.recompute(next, bw, bh, r.quality.superSample())
	}

	r.batch.reset()
	r.state = FrameOpen
	return nil
}

func (r *renderer) EndScene() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != FrameOpen {
		return ErrSceneClosed
	}

	err := r.executeFrame()
	r.dyn.reclaim()
	r.triangles = r.frameTriangles
	r.state = FrameClosed
	return err
}

func (r *renderer) DrawMeshInstances(h MeshHandle, instances []InstanceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawMeshInstances") {
		return
	}
	if r.store.mesh(h) == nil {
		r.contract.violation("DrawMeshInstances with invalid mesh handle %d", h)
		return
	}
	if len(instances) == 0 {
		return
	}
	r.batch.addMeshInstances(h, instances)
}

func (r *renderer) DrawPointLight(l PointLight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawPointLight") || l.Radius <= 0 {
		return
	}
	r.batch.addPointLight(l)
}

func (r *renderer) DrawDirectionalLight(l DirectionalLight) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawDirectionalLight") {
		return
	}
	r.batch.addDirectionalLight(l)
}

func (r *renderer) DrawSun(ramp TextureHandle, noise SunNoise, position mgl32.Vec3, radius float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawSun") || radius <= 0 {
		return
	}
	if r.store.texture(ramp) == nil {
		r.contract.violation("DrawSun with invalid ramp handle %d", ramp)
		return
	}
	r.batch.addSun(ramp, noise, position, radius)
}

func (r *renderer) DrawScreenQuads(tex TextureHandle, quads []ScreenQuad) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawScreenQuads") || len(quads) == 0 {
		return
	}
	if r.store.texture(tex) == nil {
		r.contract.violation("DrawScreenQuads with invalid texture handle %d", tex)
		return
	}
	r.batch.addScreenQuads(tex, quads)
}

func (r *renderer) DrawSFX(layer SFXLayer, tex1, tex2 TextureHandle, c color.RGBA, triangles []FXTriangle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawSFX") || len(triangles) == 0 {
		return
	}
	if layer != SFXEmissive && layer != SFXDiffuse {
		r.contract.violation("DrawSFX with unknown layer %d", layer)
		return
	}
	if r.store.texture(tex1) == nil || r.store.texture(tex2) == nil {
		r.contract.violation("DrawSFX with invalid texture handles %d, %d", tex1, tex2)
		return
	}
	r.batch.addSFX(layer, tex1, tex2, c, triangles)
}

func (r *renderer) DrawDynBuffer(p DynBufferDrawParams) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.drawAllowed("DrawDynBuffer") {
		return
	}
	b, ok := p.Buffer.(*dynBuffer)
	if !ok || b == nil || b.pool != r.dyn {
		r.contract.violation("DrawDynBuffer with a buffer from another renderer")
		return
	}
	if !b.drawable() {
		return
	}
	if p.IndexCount == 0 || int(p.IndexCount) > len(b.indices) {
		r.contract.violation("DrawDynBuffer index count %d outside 1..%d", p.IndexCount, len(b.indices))
		return
	}
	if r.store.texture(p.Texture) == nil {
		r.contract.violation("DrawDynBuffer with invalid texture handle %d", p.Texture)
		return
	}
	b.queued++
	r.batch.addDynDraw(b, p)
}

func (r *renderer) TriangleCount() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.triangles
}

func (r *renderer) ViewMatrix() mgl32.Mat4 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals.view
}

func (r *renderer) InverseViewMatrix() mgl32.Mat4 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals.invView
}

func (r *renderer) ProjectionMatrix() mgl32.Mat4 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals.proj
}

func (r *renderer) Unproject(x, y, z float32) (mgl32.Vec3, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals.unproject(r.committed.viewport, x, y, z)
}

func (r *renderer) Viewport() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed.viewport
}

func (r *renderer) Quality() Quality {
	return r.quality
}

func (r *renderer) State() FrameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.noise.stop()
	if r.noiseTexture != nil {
		r.noiseTexture.Release()
		r.noiseTexture = nil
	}
	r.dyn.releaseAll()
	r.store.release()
	r.backend.Release()
}

// solidPixels returns a w×h image filled with one colour. It is used for default textures.
func solidPixels(w, h uint32, c color.RGBA) *common.TextureStagingData {
	px := make([]byte, int(w)*int(h)*4)
	for i := 0; i < len(px); i += 4 {
		putRGBA(px[i:], c)
	}
	return &common.TextureStagingData{Data: px, Width: w, Height: h}
}
