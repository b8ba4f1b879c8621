package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// uniformSlot is the stride of per-draw uniforms in the uniform stream. It satisfies the
	// default minimum uniform buffer offset alignment.
	uniformSlot       = 256
	uniformArenaSize  = uniformSlot * 1024
	vertexArenaSize   = 4 << 20
	texelBytes        = 4
	quadIndexCapacity = MaxQuadsPerBatch * 6
)

var errNoFrame = errors.New("no frame is being recorded")

type wgpuTexture struct {
	owner *wgpuRendererBackendImpl
	tex   *wgpu.Texture
	view  *wgpu.TextureView
}

func (t *wgpuTexture) Release() {
	if t == nil || t.tex == nil {
		return
	}
	t.owner.evictTexture(t)
	t.view.Release()
	t.tex.Release()
	t.tex, t.view = nil, nil
}

type wgpuMesh struct {
	vertices, indices *wgpu.Buffer
}

func (m *wgpuMesh) Release() {
	if m.vertices != nil {
		m.vertices.Release()
		m.indices.Release()
		m.vertices, m.indices = nil, nil
	}
}

type wgpuDynBuffer struct {
	streams [4]*wgpu.Buffer
}

func (d *wgpuDynBuffer) Release() {
	for i, s := range d.streams {
		if s != nil {
			s.Release()
			d.streams[i] = nil
		}
	}
}

type renderTarget struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

func (t *renderTarget) release() {
	if t != nil && t.tex != nil {
		t.view.Release()
		t.tex.Release()
	}
}

type textureGroupKey struct {
	layout textureLayout
	a, b   *wgpuTexture
}

type wgpuRendererBackendImpl struct {
	mu  *sync.Mutex
	log *slog.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeFifo (VSync)
	cfg           TargetConfig

	targets [colorTargetCount]renderTarget
	depth   renderTarget

	globalsBuffer *wgpu.Buffer
	uniformArena  *wgpu.Buffer
	vertexArena   *wgpu.Buffer
	lightVolume   *wgpu.Buffer
	skyboxCube    *wgpu.Buffer
	quadIndices   *wgpu.Buffer

	materialSampler, clampSampler, repeatSampler *wgpu.Sampler

	globalsLayout   *wgpu.BindGroupLayout
	drawLayout      *wgpu.BindGroupLayout
	textureLayouts  [textureLayoutCount]*wgpu.BindGroupLayout
	pipelineLayouts [textureLayoutCount]*wgpu.PipelineLayout

	globalsGroup *wgpu.BindGroup
	drawGroup    *wgpu.BindGroup

	// Bind groups over the offscreen targets, rebuilt whenever the targets are.
	lightingGroup    *wgpu.BindGroup
	coronaGroup      *wgpu.BindGroup
	compositionGroup *wgpu.BindGroup
	postGroup        *wgpu.BindGroup
	blitGroup        *wgpu.BindGroup

	textureGroups map[textureGroupKey]*wgpu.BindGroup
	shaders       shader.PreProcessor
	modules       map[string]*wgpu.ShaderModule
	pipelines     map[pipelineKey]*wgpu.RenderPipeline

	// Frame state
	encoder       *wgpu.CommandEncoder
	pass          *wgpu.RenderPassEncoder
	currentPass   PassID
	state         DrawState
	bound         *wgpu.RenderPipeline
	stencilRef    uint32
	uniformOffset uint64
	vertexOffset  uint64
	frameErr      error
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend acquires an adapter and device for the surface. The GPU objects
// shared by every frame are created on the first Configure.
func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, log *slog.Logger) (wgpuRendererBackend, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:            &sync.Mutex{},
		log:           log,
		instance:      wgpu.CreateInstance(nil),
		presentMode:   wgpu.PresentModeFifo,
		textureGroups: make(map[textureGroupKey]*wgpu.BindGroup),
		shaders:       newShaderPreProcessor(),
		modules:       make(map[string]*wgpu.ShaderModule),
		pipelines:     make(map[pipelineKey]*wgpu.RenderPipeline),
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	w.adapter = a
	info := a.GetInfo()
	log.Info("renderer: adapter acquired", "name", info.Name, "driver", info.DriverDescription, "fallback", forceFallbackAdapter)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		w.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	return w, nil
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeUncapped:
		b.presentMode = wgpu.PresentModeImmediate
	case PresentModeVSync:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeFifo
	}
}

func (b *wgpuRendererBackendImpl) Configure(cfg TargetConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cfg.BufferWidth == 0 || cfg.BufferHeight == 0 {
		return fmt.Errorf("invalid target size %dx%d", cfg.BufferWidth, cfg.BufferHeight)
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		return errors.New("surface reports no formats")
	}
	if b.surfaceFormat == wgpu.TextureFormatUndefined {
		b.surfaceFormat = capabilities.Formats[0]
	}
	if cfg.SurfaceWidth > 0 && cfg.SurfaceHeight > 0 {
		b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      b.surfaceFormat,
			Width:       cfg.SurfaceWidth,
			Height:      cfg.SurfaceHeight,
			PresentMode: b.presentMode,
			AlphaMode:   capabilities.AlphaModes[0],
		})
	}

	if b.globalsBuffer == nil {
		if err := b.createShared(cfg.Quality); err != nil {
			return err
		}
	}

	b.releaseTargets()
	for i := range b.targets {
		t, err := b.createTarget(targetNames[i], targetFormats[i], cfg.BufferWidth, cfg.BufferHeight)
		if err != nil {
			return err
		}
		b.targets[i] = t
	}
	depth, err := b.createTarget("Depth Stencil", depthFormat, cfg.BufferWidth, cfg.BufferHeight)
	if err != nil {
		return err
	}
	b.depth = depth
	b.cfg = cfg

	if err := b.createTargetGroups(); err != nil {
		return err
	}
	b.log.Debug("renderer: targets configured",
		"buffer", fmt.Sprintf("%dx%d", cfg.BufferWidth, cfg.BufferHeight),
		"surface", fmt.Sprintf("%dx%d", cfg.SurfaceWidth, cfg.SurfaceHeight))
	return nil
}

func (b *wgpuRendererBackendImpl) createTarget(label string, format wgpu.TextureFormat, w, h uint32) (renderTarget, error) {
	usage := wgpu.TextureUsageRenderAttachment
	if format != depthFormat {
		usage |= wgpu.TextureUsageTextureBinding
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label + " Target",
		Usage:         usage,
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return renderTarget{}, fmt.Errorf("create %s target: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return renderTarget{}, err
	}
	return renderTarget{tex: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) releaseTargets() {
	for _, g := range []*wgpu.BindGroup{b.lightingGroup, b.coronaGroup, b.compositionGroup, b.postGroup, b.blitGroup} {
		if g != nil {
			g.Release()
		}
	}
	b.lightingGroup, b.coronaGroup, b.compositionGroup, b.postGroup, b.blitGroup = nil, nil, nil, nil, nil
	for i := range b.targets {
		b.targets[i].release()
		b.targets[i] = renderTarget{}
	}
	b.depth.release()
	b.depth = renderTarget{}
}

// createShared creates the buffers, samplers and layouts that live as long as the device.
func (b *wgpuRendererBackendImpl) createShared(q Quality) error {
	if err := b.createLayouts(); err != nil {
		return fmt.Errorf("create bind group layouts: %w", err)
	}

	var err error
	if b.materialSampler, err = b.device.CreateSampler(materialSampler(q)); err != nil {
		return err
	}
	if b.clampSampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Clamp Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}); err != nil {
		return err
	}
	if b.repeatSampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Repeat Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}); err != nil {
		return err
	}

	buffers := []struct {
		dst   **wgpu.Buffer
		label string
		size  uint64
		usage wgpu.BufferUsage
		data  []byte
	}{
		{&b.globalsBuffer, "Globals", globalsSize, wgpu.BufferUsageUniform, nil},
		{&b.uniformArena, "Draw Uniform Stream", uniformArenaSize, wgpu.BufferUsageUniform, nil},
		{&b.vertexArena, "Vertex Stream", vertexArenaSize, wgpu.BufferUsageVertex, nil},
		{&b.lightVolume, "Light Volume", 0, wgpu.BufferUsageVertex, encodeVec3s(lightVolumeVertices())},
		{&b.skyboxCube, "Skybox Cube", 0, wgpu.BufferUsageVertex, encodeVec3s(skyboxVertices())},
		{&b.quadIndices, "Quad Indices", 0, wgpu.BufferUsageIndex, encodeDynIndices(quadIndices(MaxQuadsPerBatch))},
	}
	for _, bd := range buffers {
		size := bd.size
		if bd.data != nil {
			size = uint64(len(bd.data))
		}
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: bd.label + " Buffer",
			Size:  size,
			Usage: bd.usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create %s buffer: %w", bd.label, err)
		}
		if bd.data != nil {
			b.queue.WriteBuffer(buf, 0, bd.data)
		}
		*bd.dst = buf
	}

	b.globalsGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Globals Bind Group",
		Layout: b.globalsLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.globalsBuffer, Size: globalsSize},
			{Binding: 1, Sampler: b.materialSampler},
			{Binding: 2, Sampler: b.clampSampler},
			{Binding: 3, Sampler: b.repeatSampler},
		},
	})
	if err != nil {
		return err
	}
	b.drawGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Draw Uniform Bind Group",
		Layout:  b.drawLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: b.uniformArena, Size: uniformSlot}},
	})
	return err
}

// materialSampler maps the quality level onto filtering for mesh and effect textures.
func materialSampler(q Quality) *wgpu.SamplerDescriptor {
	desc := &wgpu.SamplerDescriptor{
		Label:         "Material Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	switch q {
	case QualityLow:
		desc.MagFilter = wgpu.FilterModeNearest
		desc.MinFilter = wgpu.FilterModeNearest
		desc.MipmapFilter = wgpu.MipmapFilterModeNearest
		desc.LodMaxClamp = 0
	case QualityMedium:
		desc.MipmapFilter = wgpu.MipmapFilterModeNearest
	case QualityHighest:
		desc.MaxAnisotropy = 8
	}
	return desc
}

func (b *wgpuRendererBackendImpl) createTargetGroups() error {
	view := func(t colorTarget) *wgpu.TextureView { return b.targets[t].view }
	groups := []struct {
		dst    **wgpu.BindGroup
		label  string
		layout textureLayout
		views  []*wgpu.TextureView
	}{
		{&b.lightingGroup, "Lighting", layoutTwoTextures, []*wgpu.TextureView{view(targetGDiffuse), view(targetGNormal)}},
		{&b.coronaGroup, "Corona", layoutOneTexture, []*wgpu.TextureView{view(targetGEmissive)}},
		{&b.compositionGroup, "Composition", layoutGBuffer, []*wgpu.TextureView{
			view(targetGDiffuse), view(targetGNormal), view(targetGEmissive), view(targetLitDiffuse), view(targetLitSpecular),
		}},
		{&b.postGroup, "Post Effect", layoutTwoTextures, []*wgpu.TextureView{view(targetScene), view(targetWarp)}},
		{&b.blitGroup, "Present", layoutOneTexture, []*wgpu.TextureView{view(targetFinal)}},
	}
	for _, g := range groups {
		group, err := b.textureGroup(g.label, g.layout, g.views)
		if err != nil {
			return err
		}
		*g.dst = group
	}
	return nil
}

func (b *wgpuRendererBackendImpl) textureGroup(label string, layout textureLayout, views []*wgpu.TextureView) (*wgpu.BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, len(views))
	for i, v := range views {
		entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), TextureView: v}
	}
	return b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label + " Bind Group",
		Layout:  b.textureLayouts[layout],
		Entries: entries,
	})
}

// materialGroup returns the cached bind group for a texture pair. b may be nil for
// single-texture layouts.
func (b *wgpuRendererBackendImpl) materialGroup(layout textureLayout, t0, t1 GPUTexture) *wgpu.BindGroup {
	a, ok0 := t0.(*wgpuTexture)
	c, ok1 := t1.(*wgpuTexture)
	if !ok0 || a == nil || a.view == nil {
		b.fail(errors.New("draw references a missing texture"))
		return nil
	}
	views := []*wgpu.TextureView{a.view}
	if layout == layoutTwoTextures || layout == layoutSun {
		if !ok1 || c == nil || c.view == nil {
			b.fail(errors.New("draw references a missing second texture"))
			return nil
		}
		views = append(views, c.view)
	} else {
		c = nil
	}

	key := textureGroupKey{layout: layout, a: a, b: c}
	if g, ok := b.textureGroups[key]; ok {
		return g
	}
	g, err := b.textureGroup("Material", layout, views)
	if err != nil {
		b.fail(err)
		return nil
	}
	b.textureGroups[key] = g
	return g
}

func (b *wgpuRendererBackendImpl) evictTexture(t *wgpuTexture) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k, g := range b.textureGroups {
		if k.a == t || k.b == t {
			g.Release()
			delete(b.textureGroups, k)
		}
	}
}

func (b *wgpuRendererBackendImpl) CreateTexture(levels []*common.TextureStagingData, sampling TextureSampling) (GPUTexture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(levels) == 0 {
		return nil, errors.New("texture has no levels")
	}
	base := levels[0]
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Texture",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: base.Width, Height: base.Height, DepthOrArrayLayers: 1},
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: uint32(len(levels)),
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	for i, l := range levels {
		b.queue.WriteTexture(
			&wgpu.ImageCopyTexture{Texture: tex, MipLevel: uint32(i), Aspect: wgpu.TextureAspectAll},
			l.Data,
			&wgpu.TextureDataLayout{BytesPerRow: l.Width * texelBytes, RowsPerImage: l.Height},
			&wgpu.Extent3D{Width: l.Width, Height: l.Height, DepthOrArrayLayers: 1},
		)
	}

	desc := &wgpu.TextureViewDescriptor{
		Dimension:       wgpu.TextureViewDimension2D,
		Format:          wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount:   uint32(len(levels)),
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	}
	if sampling == SampleClamp {
		desc.MipLevelCount = 1
	}
	view, err := tex.CreateView(desc)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{owner: b, tex: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) CreateCubemap(faces [6]*common.TextureStagingData) (GPUTexture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := faces[0].Width
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Skybox Cubemap",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: 6},
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	for i, f := range faces {
		b.queue.WriteTexture(
			&wgpu.ImageCopyTexture{Texture: tex, Origin: wgpu.Origin3D{Z: uint32(i)}, Aspect: wgpu.TextureAspectAll},
			f.Data,
			&wgpu.TextureDataLayout{BytesPerRow: size * texelBytes, RowsPerImage: size},
			&wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: 1},
		)
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          wgpu.TextureFormatRGBA8Unorm,
		Dimension:       wgpu.TextureViewDimensionCube,
		MipLevelCount:   1,
		ArrayLayerCount: 6,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{owner: b, tex: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) CreateVolumeTexture(size uint32, rgba []byte) (GPUTexture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(len(rgba)) != uint64(size)*uint64(size)*uint64(size)*texelBytes {
		return nil, fmt.Errorf("volume data is %d bytes, want %d³ texels", len(rgba), size)
	}
	extent := wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: size}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Noise Volume",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension3D,
		Size:          extent,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex, Aspect: wgpu.TextureAspectAll},
		rgba,
		&wgpu.TextureDataLayout{BytesPerRow: size * texelBytes, RowsPerImage: size},
		&extent,
	)
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          wgpu.TextureFormatRGBA8Unorm,
		Dimension:       wgpu.TextureViewDimension3D,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{owner: b, tex: tex, view: view}, nil
}

func (b *wgpuRendererBackendImpl) CreateMesh(vertices, indices []byte) (GPUMesh, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vb, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Mesh Vertex Buffer",
		Size:  uint64(len(vertices)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	ib, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Mesh Index Buffer",
		Size:  uint64(len(indices)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		vb.Release()
		return nil, err
	}
	b.queue.WriteBuffer(vb, 0, vertices)
	b.queue.WriteBuffer(ib, 0, indices)
	return &wgpuMesh{vertices: vb, indices: ib}, nil
}

func (b *wgpuRendererBackendImpl) CreateDynBuffer(maxVertices, maxIndices uint32) (GPUDynBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := uint64(maxVertices)
	sizes := [4]uint64{
		DynStreamPositions: v * dynPositionSize,
		DynStreamUVs:       v * dynUVSize,
		DynStreamColors:    v * dynColorSize,
		DynStreamIndices:   align(uint64(maxIndices)*dynIndexSize, 4),
	}
	d := &wgpuDynBuffer{}
	for i, size := range sizes {
		usage := wgpu.BufferUsageVertex
		if DynStream(i) == DynStreamIndices {
			usage = wgpu.BufferUsageIndex
		}
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("Dynamic Buffer Stream %d", i),
			Size:  size,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			d.Release()
			return nil, err
		}
		d.streams[i] = buf
	}
	return d, nil
}

func (b *wgpuRendererBackendImpl) WriteDynBuffer(buf GPUDynBuffer, stream DynStream, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := buf.(*wgpuDynBuffer)
	if !ok || d.streams[stream] == nil || len(data) == 0 {
		return
	}
	if err := b.queue.WriteBuffer(d.streams[stream], 0, data); err != nil {
		b.log.Error("renderer: dynamic buffer write failed", "stream", stream, "error", err)
	}
}

func (b *wgpuRendererBackendImpl) WriteGlobals(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.globalsBuffer != nil {
		b.queue.WriteBuffer(b.globalsBuffer, 0, data)
	}
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.encoder != nil {
		return errors.New("previous frame not yet ended")
	}
	if b.targets[targetFinal].view == nil {
		return errors.New("render targets not configured")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.encoder = encoder
	b.uniformOffset, b.vertexOffset = 0, 0
	b.frameErr = nil
	return nil
}

func (b *wgpuRendererBackendImpl) BeginPass(pass PassID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.encoder == nil {
		b.fail(errNoFrame)
		return
	}
	b.currentPass = pass
	b.openPass(false)
}

// openPass begins the current pass. resume reopens a pass split by a stream flush, so
// nothing is cleared.
func (b *wgpuRendererBackendImpl) openPass(resume bool) {
	layout := passLayouts[b.currentPass]
	desc := &wgpu.RenderPassDescriptor{
		Label:            b.currentPass.String() + " Pass",
		ColorAttachments: make([]wgpu.RenderPassColorAttachment, len(layout.colors)),
	}
	for i, a := range layout.colors {
		load := wgpu.LoadOpLoad
		if a.clear && !resume {
			load = wgpu.LoadOpClear
		}
		desc.ColorAttachments[i] = wgpu.RenderPassColorAttachment{
			View:    b.targets[a.target].view,
			LoadOp:  load,
			StoreOp: wgpu.StoreOpStore,
		}
	}
	if layout.depth {
		load := wgpu.LoadOpLoad
		if layout.clearDepth && !resume {
			load = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:              b.depth.view,
			DepthLoadOp:       load,
			DepthStoreOp:      wgpu.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     load,
			StencilStoreOp:    wgpu.StoreOpStore,
			StencilClearValue: stencilClear,
		}
	}

	b.pass = b.encoder.BeginRenderPass(desc)
	b.bound = nil
	b.pass.SetBindGroup(0, b.globalsGroup, nil)
	b.pass.SetBindGroup(1, b.drawGroup, []uint32{0})
	if layout.depth {
		b.pass.SetStencilReference(b.stencilRef)
	}
}

func (b *wgpuRendererBackendImpl) SetState(state DrawState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
}

func (b *wgpuRendererBackendImpl) SetStencilReference(ref uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stencilRef = ref
	if b.pass != nil && passLayouts[b.currentPass].depth {
		b.pass.SetStencilReference(ref)
	}
}

// prepare binds the pipeline for the current state. It reports false when nothing can be
// drawn.
func (b *wgpuRendererBackendImpl) prepare() bool {
	if b.pass == nil {
		b.fail(errNoFrame)
		return false
	}
	p, err := b.pipeline(b.currentPass, b.state)
	if err != nil {
		b.fail(err)
		return false
	}
	if p != b.bound {
		b.pass.SetPipeline(p)
		b.bound = p
	}
	return true
}

// streamVertices copies data into the per-frame vertex stream and returns its offset.
func (b *wgpuRendererBackendImpl) streamVertices(data []byte) (uint64, bool) {
	if b.pass == nil {
		b.fail(errNoFrame)
		return 0, false
	}
	size := uint64(len(data))
	if size > vertexArenaSize {
		b.fail(fmt.Errorf("draw streams %d bytes, more than the %d byte vertex stream", size, vertexArenaSize))
		return 0, false
	}
	if b.vertexOffset+size > vertexArenaSize && !b.flush() {
		return 0, false
	}
	off := b.vertexOffset
	b.queue.WriteBuffer(b.vertexArena, off, data)
	b.vertexOffset += align(size, 4)
	return off, true
}

// streamUniform copies a per-draw uniform into the next uniform slot and binds it.
func (b *wgpuRendererBackendImpl) streamUniform(data []byte) bool {
	if b.pass == nil {
		b.fail(errNoFrame)
		return false
	}
	if b.uniformOffset+uniformSlot > uniformArenaSize && !b.flush() {
		return false
	}
	off := b.uniformOffset
	b.queue.WriteBuffer(b.uniformArena, off, data)
	b.uniformOffset += uniformSlot
	b.pass.SetBindGroup(1, b.drawGroup, []uint32{uint32(off)})
	return true
}

// flush submits everything recorded so far so the streams can be reused, then resumes the
// current pass.
func (b *wgpuRendererBackendImpl) flush() bool {
	b.pass.End()
	b.pass.Release()
	b.pass = nil

	cmd, err := b.encoder.Finish(nil)
	b.encoder.Release()
	b.encoder = nil
	if err != nil {
		b.fail(err)
		return false
	}
	b.queue.Submit(cmd)
	cmd.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.fail(err)
		return false
	}
	b.encoder = encoder
	b.uniformOffset, b.vertexOffset = 0, 0
	b.openPass(true)
	b.log.Debug("renderer: stream flushed", "pass", b.currentPass)
	return true
}

func (b *wgpuRendererBackendImpl) DrawMesh(mesh GPUMesh, diffuse, normals GPUTexture, instances []byte, instanceCount, indexCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := mesh.(*wgpuMesh)
	if !ok || m.vertices == nil {
		b.fail(errors.New("draw references a released mesh"))
		return
	}
	off, ok := b.streamVertices(instances)
	if !ok || !b.prepare() {
		return
	}
	group := b.materialGroup(layoutTwoTextures, diffuse, normals)
	if group == nil {
		return
	}
	b.pass.SetBindGroup(2, group, nil)
	b.pass.SetVertexBuffer(0, m.vertices, 0, wgpu.WholeSize)
	b.pass.SetVertexBuffer(1, b.vertexArena, off, uint64(len(instances)))
	b.pass.SetIndexBuffer(m.indices, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.pass.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawLight(uniform []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.streamUniform(uniform) || !b.prepare() {
		return
	}
	b.pass.SetBindGroup(2, b.lightingGroup, nil)
	if b.state.Program == ProgramPointLight {
		b.pass.SetVertexBuffer(0, b.lightVolume, 0, wgpu.WholeSize)
		b.pass.Draw(uint32(len(lightVolumeVertices())), 1, 0, 0)
		return
	}
	b.pass.Draw(3, 1, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawFullscreen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.prepare() {
		return
	}
	switch b.state.Program {
	case ProgramComposition:
		b.pass.SetBindGroup(2, b.compositionGroup, nil)
	case ProgramPostEffect:
		b.pass.SetBindGroup(2, b.postGroup, nil)
	case ProgramDirectionalLight:
		b.pass.SetBindGroup(2, b.lightingGroup, nil)
	default:
		b.fail(fmt.Errorf("program %d is not a full-screen program", b.state.Program))
		return
	}
	b.pass.Draw(3, 1, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawSkybox(cube GPUTexture) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.prepare() {
		return
	}
	group := b.materialGroup(layoutCube, cube, nil)
	if group == nil {
		return
	}
	b.pass.SetBindGroup(2, group, nil)
	b.pass.SetVertexBuffer(0, b.skyboxCube, 0, wgpu.WholeSize)
	b.pass.Draw(uint32(len(skyboxVertices())), 1, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawBillboards(tex0, tex1 GPUTexture, vertices []byte, vertexCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	off, ok := b.streamVertices(vertices)
	if !ok || !b.prepare() {
		return
	}
	var group *wgpu.BindGroup
	switch b.state.Program {
	case ProgramSun:
		group = b.materialGroup(layoutSun, tex0, tex1)
	case ProgramCorona:
		group = b.coronaGroup
	default:
		group = b.materialGroup(layoutTwoTextures, tex0, tex1)
	}
	if group == nil {
		return
	}
	b.pass.SetBindGroup(2, group, nil)
	b.pass.SetVertexBuffer(0, b.vertexArena, off, uint64(len(vertices)))
	b.pass.Draw(vertexCount, 1, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawDynBuffer(buf GPUDynBuffer, tex GPUTexture, uniform []byte, indexCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := buf.(*wgpuDynBuffer)
	if !ok || d.streams[DynStreamIndices] == nil {
		b.fail(errors.New("draw references a released dynamic buffer"))
		return
	}
	if !b.streamUniform(uniform) || !b.prepare() {
		return
	}
	group := b.materialGroup(layoutOneTexture, tex, nil)
	if group == nil {
		return
	}
	b.pass.SetBindGroup(2, group, nil)
	b.pass.SetVertexBuffer(0, d.streams[DynStreamPositions], 0, wgpu.WholeSize)
	b.pass.SetVertexBuffer(1, d.streams[DynStreamUVs], 0, wgpu.WholeSize)
	b.pass.SetVertexBuffer(2, d.streams[DynStreamColors], 0, wgpu.WholeSize)
	b.pass.SetIndexBuffer(d.streams[DynStreamIndices], wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	b.pass.DrawIndexed(indexCount, 1, 0, 0, 0)
}

func (b *wgpuRendererBackendImpl) DrawScreenQuads(tex GPUTexture, vertices []byte, quadCount uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if quadCount*6 > quadIndexCapacity {
		b.fail(fmt.Errorf("%d quads exceed the %d quad batch", quadCount, MaxQuadsPerBatch))
		return
	}
	off, ok := b.streamVertices(vertices)
	if !ok || !b.prepare() {
		return
	}
	group := b.materialGroup(layoutOneTexture, tex, nil)
	if group == nil {
		return
	}
	b.pass.SetBindGroup(2, group, nil)
	b.pass.SetVertexBuffer(0, b.vertexArena, off, uint64(len(vertices)))
	b.pass.SetIndexBuffer(b.quadIndices, wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
	b.pass.DrawIndexed(quadCount*6, 1, 0, 0, 0)
}

func (b *wgpuRendererBackendImpl) EndPass() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pass == nil {
		return
	}
	b.pass.End()
	b.pass.Release()
	b.pass = nil
}

// EndFrame scales the final target into the viewport of the surface, submits the frame
// and presents it.
func (b *wgpuRendererBackendImpl) EndFrame(viewport Viewport) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.encoder == nil {
		return errNoFrame
	}
	if b.pass != nil {
		b.pass.End()
		b.pass.Release()
		b.pass = nil
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		b.fail(fmt.Errorf("acquire surface texture: %w", err))
		surfaceTexture = nil
	}
	var surfaceView *wgpu.TextureView
	if surfaceTexture != nil {
		if surfaceView, err = surfaceTexture.CreateView(nil); err != nil {
			b.fail(err)
		} else {
			b.blit(surfaceView, viewport)
		}
	}

	cmd, err := b.encoder.Finish(nil)
	b.encoder.Release()
	b.encoder = nil
	if err != nil {
		b.fail(err)
	} else {
		b.queue.Submit(cmd)
		cmd.Release()
	}

	if surfaceView != nil {
		b.surface.Present()
		surfaceView.Release()
	}
	if surfaceTexture != nil {
		surfaceTexture.Release()
	}
	return b.frameErr
}

// blit draws the final target into the clipped viewport of the surface view.
func (b *wgpuRendererBackendImpl) blit(view *wgpu.TextureView, vp Viewport) {
	pass := b.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "Present Pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{A: 1},
		}},
	})
	defer func() {
		pass.End()
		pass.Release()
	}()

	x0 := common.Clamp(vp.X, 0, int(b.cfg.SurfaceWidth))
	y0 := common.Clamp(vp.Y, 0, int(b.cfg.SurfaceHeight))
	x1 := common.Clamp(vp.X+int(vp.Width), 0, int(b.cfg.SurfaceWidth))
	y1 := common.Clamp(vp.Y+int(vp.Height), 0, int(b.cfg.SurfaceHeight))
	if x1 <= x0 || y1 <= y0 {
		return
	}

	p, err := b.pipeline(passPresent, DrawState{Program: programBlit, ColorWrite: true})
	if err != nil {
		b.fail(err)
		return
	}
	pass.SetPipeline(p)
	pass.SetBindGroup(0, b.globalsGroup, nil)
	pass.SetBindGroup(1, b.drawGroup, []uint32{0})
	pass.SetBindGroup(2, b.blitGroup, nil)
	pass.SetViewport(float32(x0), float32(y0), float32(x1-x0), float32(y1-y0), 0, 1)
	pass.Draw(3, 1, 0, 0)
}

// fail records the first error of the frame.
func (b *wgpuRendererBackendImpl) fail(err error) {
	if b.frameErr == nil {
		b.frameErr = err
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pass != nil {
		b.pass.Release()
		b.pass = nil
	}
	if b.encoder != nil {
		b.encoder.Release()
		b.encoder = nil
	}
	for k, g := range b.textureGroups {
		g.Release()
		delete(b.textureGroups, k)
	}
	for k, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, k)
	}
	for k, m := range b.modules {
		m.Release()
		delete(b.modules, k)
	}
	b.releaseTargets()

	for _, g := range []*wgpu.BindGroup{b.globalsGroup, b.drawGroup} {
		if g != nil {
			g.Release()
		}
	}
	for _, l := range b.pipelineLayouts {
		if l != nil {
			l.Release()
		}
	}
	for _, l := range append(b.textureLayouts[:], b.globalsLayout, b.drawLayout) {
		if l != nil {
			l.Release()
		}
	}
	for _, s := range []*wgpu.Sampler{b.materialSampler, b.clampSampler, b.repeatSampler} {
		if s != nil {
			s.Release()
		}
	}
	for _, buf := range []*wgpu.Buffer{b.globalsBuffer, b.uniformArena, b.vertexArena, b.lightVolume, b.skyboxCube, b.quadIndices} {
		if buf != nil {
			buf.Release()
		}
	}
	b.globalsBuffer = nil

	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.surface != nil {
		b.surface.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
	b.queue, b.device, b.adapter, b.surface, b.instance = nil, nil, nil, nil, nil
}

func align(n, to uint64) uint64 {
	return (n + to - 1) / to * to
}
