package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/*.wgsl
var shaderAssets embed.FS

// newShaderPreProcessor resolves includes against the embedded shaders and shares the debug
// view numbering with the composition shader.
func newShaderPreProcessor() shader.PreProcessor {
	sources, err := fs.Sub(shaderAssets, "assets")
	if err != nil {
		panic(err) // the embed pattern guarantees the directory
	}
	return shader.NewPreProcessor(sources,
		shader.WithConstant("DEBUG_DIFFUSE", DebugDiffuse),
		shader.WithConstant("DEBUG_NORMALS", DebugNormals),
		shader.WithConstant("DEBUG_EMISSIVE", DebugEmissive),
		shader.WithConstant("DEBUG_SPECULAR", DebugSpecular),
		shader.WithConstant("DEBUG_NO_SPECULAR", DebugNoSpecular),
		shader.WithConstant("DEBUG_NO_DIFFUSE", DebugNoDiffuse),
		shader.WithConstant("DEBUG_LIT_VOLUMES", DebugLitVolumes),
	)
}

const depthFormat = wgpu.TextureFormatDepth24PlusStencil8

// colorTarget names one of the offscreen colour targets.
type colorTarget int

const (
	targetGDiffuse colorTarget = iota
	targetGNormal
	targetGEmissive
	targetLitDiffuse
	targetLitSpecular
	targetScene
	targetWarp
	targetFinal
	colorTargetCount
)

var targetFormats = [colorTargetCount]wgpu.TextureFormat{
	targetGDiffuse:    wgpu.TextureFormatRGBA8Unorm,
	targetGNormal:     wgpu.TextureFormatRGBA16Float,
	targetGEmissive:   wgpu.TextureFormatRGBA16Float,
	targetLitDiffuse:  wgpu.TextureFormatRGBA16Float,
	targetLitSpecular: wgpu.TextureFormatRGBA16Float,
	targetScene:       wgpu.TextureFormatRGBA8Unorm,
	targetWarp:        wgpu.TextureFormatRG16Float,
	targetFinal:       wgpu.TextureFormatRGBA8Unorm,
}

var targetNames = [colorTargetCount]string{
	"G-Buffer Diffuse", "G-Buffer Normal", "G-Buffer Emissive", "Lit Diffuse",
	"Lit Specular", "Scene", "Warp", "Final",
}

type attachment struct {
	target colorTarget
	clear  bool
}

// passLayout lists the colour attachments of a pass and how the depth-stencil target is used.
type passLayout struct {
	colors     []attachment
	depth      bool
	clearDepth bool
}

// passPresent is the blit into the surface. It is not a PassID the executor drives.
const passPresent = passCount

var passLayouts = [passCount]passLayout{
	PassModel: {
		colors:     []attachment{{targetGDiffuse, true}, {targetGNormal, true}, {targetGEmissive, true}},
		depth:      true,
		clearDepth: true,
	},
	PassLighting: {
		colors: []attachment{{targetLitDiffuse, true}, {targetLitSpecular, true}},
		depth:  true,
	},
	PassSunSpheres: {
		colors: []attachment{{targetLitDiffuse, false}, {targetLitSpecular, false}, {targetGEmissive, false}},
		depth:  true,
	},
	PassCoronas: {
		colors: []attachment{{targetLitSpecular, false}},
		depth:  true,
	},
	PassEmissiveSFX: {
		colors: []attachment{{targetGEmissive, false}},
		depth:  true,
	},
	PassComposition: {
		colors: []attachment{{targetScene, true}},
		depth:  true,
	},
	PassDynBuffers: {
		colors: []attachment{{targetScene, false}},
		depth:  true,
	},
	PassDiffuseSFX: {
		colors: []attachment{{targetScene, false}, {targetWarp, true}},
		depth:  true,
	},
	PassPostEffect: {
		colors: []attachment{{targetFinal, true}},
	},
	PassScreenQuads: {
		colors: []attachment{{targetFinal, false}},
	},
}

// textureLayout is the shape of bind group 2.
type textureLayout int

const (
	layoutOneTexture textureLayout = iota
	layoutTwoTextures
	layoutSun
	layoutCube
	layoutGBuffer
	textureLayoutCount
)

// programBlit copies the final target into the surface.
const programBlit = ProgramScreenQuad + 1

type programSpec struct {
	shader  string
	vs, fs  string
	buffers []wgpu.VertexBufferLayout
	layout  textureLayout
}

var (
	meshVertexLayout = wgpu.VertexBufferLayout{
		ArrayStride: meshVertexSize,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 20, ShaderLocation: 2},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 32, ShaderLocation: 3},
		},
	}
	instanceLayout = wgpu.VertexBufferLayout{
		ArrayStride: instanceSize,
		StepMode:    wgpu.VertexStepModeInstance,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 4},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 5},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 6},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 7},
			{Format: wgpu.VertexFormatUint32, Offset: 64, ShaderLocation: 8},
			{Format: wgpu.VertexFormatUint32x2, Offset: 68, ShaderLocation: 9},
		},
	}
	positionLayout = wgpu.VertexBufferLayout{
		ArrayStride: 12,
		Attributes:  []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 0}},
	}
	fxVertexLayout = wgpu.VertexBufferLayout{
		ArrayStride: fxVertexSize,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 20, ShaderLocation: 2},
		},
	}
	dynLayouts = []wgpu.VertexBufferLayout{
		{ArrayStride: dynPositionSize, Attributes: []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x3, ShaderLocation: 0}}},
		{ArrayStride: dynUVSize, Attributes: []wgpu.VertexAttribute{{Format: wgpu.VertexFormatFloat32x2, ShaderLocation: 1}}},
		{ArrayStride: dynColorSize, Attributes: []wgpu.VertexAttribute{{Format: wgpu.VertexFormatUnorm8x4, ShaderLocation: 2}}},
	}
	quadVertexLayout = wgpu.VertexBufferLayout{
		ArrayStride: quadVertexSize,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
			{Format: wgpu.VertexFormatUnorm8x4, Offset: 16, ShaderLocation: 2},
		},
	}
)

var programs = map[Program]programSpec{
	ProgramModel: {
		shader: "model.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{meshVertexLayout, instanceLayout},
		layout:  layoutTwoTextures,
	},
	ProgramPointLight: {
		shader: "light.wgsl", vs: "vs_point", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{positionLayout},
		layout:  layoutTwoTextures,
	},
	ProgramDirectionalLight: {shader: "light.wgsl", vs: "vs_fullscreen", fs: "fs_main", layout: layoutTwoTextures},
	ProgramSun: {
		shader: "sun.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{fxVertexLayout},
		layout:  layoutSun,
	},
	ProgramCorona: {
		shader: "corona.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{fxVertexLayout},
		layout:  layoutOneTexture,
	},
	ProgramSFXEmissive: {
		shader: "sfx.wgsl", vs: "vs_main", fs: "fs_emissive",
		buffers: []wgpu.VertexBufferLayout{fxVertexLayout},
		layout:  layoutTwoTextures,
	},
	ProgramSFXDiffuse: {
		shader: "sfx.wgsl", vs: "vs_main", fs: "fs_diffuse",
		buffers: []wgpu.VertexBufferLayout{fxVertexLayout},
		layout:  layoutTwoTextures,
	},
	ProgramSkybox: {
		shader: "skybox.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{positionLayout},
		layout:  layoutCube,
	},
	ProgramComposition: {shader: "composition.wgsl", vs: "vs_main", fs: "fs_main", layout: layoutGBuffer},
	ProgramDynBuffer: {
		shader: "dynbuffer.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: dynLayouts,
		layout:  layoutOneTexture,
	},
	ProgramPostEffect: {shader: "posteffect.wgsl", vs: "vs_main", fs: "fs_main", layout: layoutTwoTextures},
	ProgramScreenQuad: {
		shader: "quads.wgsl", vs: "vs_main", fs: "fs_main",
		buffers: []wgpu.VertexBufferLayout{quadVertexLayout},
		layout:  layoutOneTexture,
	},
	programBlit: {shader: "blit.wgsl", vs: "vs_main", fs: "fs_main", layout: layoutOneTexture},
}

var (
	additiveBlend = wgpu.BlendState{
		Color: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne},
		Alpha: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne},
	}
	alphaBlend = wgpu.BlendState{
		Color: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
		Alpha: wgpu.BlendComponent{Operation: wgpu.BlendOperationAdd, SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha},
	}
)

// blendFor returns the blend state of one colour attachment. The warp target of the
// diffuse effect pass always accumulates.
func blendFor(pass PassID, state DrawState, slot int) *wgpu.BlendState {
	mode := state.Blend
	if pass == PassDiffuseSFX && slot == 1 && mode != BlendNone {
		mode = BlendAdditive
	}
	switch mode {
	case BlendAdditive:
		return &additiveBlend
	case BlendAlpha:
		return &alphaBlend
	default:
		return nil
	}
}

var depthCompares = [...]wgpu.CompareFunction{
	DepthAlways:       wgpu.CompareFunctionAlways,
	DepthLess:         wgpu.CompareFunctionLess,
	DepthLessEqual:    wgpu.CompareFunctionLessEqual,
	DepthGreaterEqual: wgpu.CompareFunctionGreaterEqual,
}

var cullModes = [...]wgpu.CullMode{
	CullNone:  wgpu.CullModeNone,
	CullFront: wgpu.CullModeFront,
	CullBack:  wgpu.CullModeBack,
}

type stencilConfig struct {
	compare   wgpu.CompareFunction
	pass      wgpu.StencilOperation
	writeMask uint32
}

// The reference value is the left operand of every comparison.
var stencilConfigs = [...]stencilConfig{
	StencilOff:        {wgpu.CompareFunctionAlways, wgpu.StencilOperationKeep, 0},
	StencilWriteMesh:  {wgpu.CompareFunctionAlways, wgpu.StencilOperationReplace, 0xFF},
	StencilMarkLight:  {wgpu.CompareFunctionGreater, wgpu.StencilOperationReplace, 0xFF},
	StencilMatchLight: {wgpu.CompareFunctionEqual, wgpu.StencilOperationKeep, 0},
	StencilBelowLight: {wgpu.CompareFunctionGreater, wgpu.StencilOperationKeep, 0},
	StencilMeshOnly:   {wgpu.CompareFunctionNotEqual, wgpu.StencilOperationKeep, 0},
}

func depthStencilFor(state DrawState) *wgpu.DepthStencilState {
	sc := stencilConfigs[state.Stencil]
	face := wgpu.StencilFaceState{
		Compare:     sc.compare,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      sc.pass,
	}
	return &wgpu.DepthStencilState{
		Format:            depthFormat,
		DepthWriteEnabled: state.DepthWrite,
		DepthCompare:      depthCompares[state.Depth],
		StencilFront:      face,
		StencilBack:       face,
		StencilReadMask:   0xFF,
		StencilWriteMask:  sc.writeMask,
	}
}

type pipelineKey struct {
	pass  PassID
	state DrawState
}

// shaderModule compiles a shader file after resolving its annotations.
func (b *wgpuRendererBackendImpl) shaderModule(name string) (*wgpu.ShaderModule, error) {
	if m, ok := b.modules[name]; ok {
		return m, nil
	}
	code, err := b.shaders.Load(strings.TrimSuffix(name, ".wgsl"))
	if err != nil {
		return nil, err
	}
	m, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	b.modules[name] = m
	return m, nil
}

// pipeline returns the cached render pipeline for a draw state within a pass, creating it
// on first use.
func (b *wgpuRendererBackendImpl) pipeline(pass PassID, state DrawState) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{pass: pass, state: state}
	if p, ok := b.pipelines[key]; ok {
		return p, nil
	}

	spec, ok := programs[state.Program]
	if !ok {
		return nil, fmt.Errorf("unknown program %d", state.Program)
	}
	module, err := b.shaderModule(spec.shader)
	if err != nil {
		return nil, err
	}

	writeMask := wgpu.ColorWriteMaskAll
	if !state.ColorWrite {
		writeMask = wgpu.ColorWriteMaskNone
	}
	var targets []wgpu.ColorTargetState
	var depth *wgpu.DepthStencilState
	if pass == passPresent {
		targets = []wgpu.ColorTargetState{{Format: b.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll}}
	} else {
		layout := passLayouts[pass]
		targets = make([]wgpu.ColorTargetState, len(layout.colors))
		for i, a := range layout.colors {
			targets[i] = wgpu.ColorTargetState{
				Format:    targetFormats[a.target],
				Blend:     blendFor(pass, state, i),
				WriteMask: writeMask,
			}
		}
		if layout.depth {
			depth = depthStencilFor(state)
		}
	}

	primitive := wgpu.PrimitiveState{
		Topology:  wgpu.PrimitiveTopologyTriangleList,
		FrontFace: wgpu.FrontFaceCCW,
		CullMode:  cullModes[state.Cull],
	}
	if state.Topology == TopologyTriangleStrip {
		primitive.Topology = wgpu.PrimitiveTopologyTriangleStrip
		primitive.StripIndexFormat = wgpu.IndexFormatUint32
		if state.Program == ProgramDynBuffer {
			primitive.StripIndexFormat = wgpu.IndexFormatUint16
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s %s Render Pipeline", pass, spec.shader),
		Layout: b.pipelineLayouts[spec.layout],
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: spec.vs,
			Buffers:    spec.buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: spec.fs,
			Targets:    targets,
		},
		Primitive:    primitive,
		DepthStencil: depth,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline for %s: %w", spec.shader, pass, err)
	}
	b.pipelines[key] = created
	return created, nil
}

// createLayouts builds the bind group layouts shared by every pipeline:
// group 0 holds the globals and samplers, group 1 the per-draw uniform, group 2 textures.
func (b *wgpuRendererBackendImpl) createLayouts() error {
	var err error
	stages := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment

	b.globalsLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Globals Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: stages, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, MinBindingSize: globalsSize}},
			{Binding: 1, Visibility: stages, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
			{Binding: 2, Visibility: stages, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
			{Binding: 3, Visibility: stages, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
		},
	})
	if err != nil {
		return err
	}

	b.drawLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Draw Uniform Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: stages, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: true}},
		},
	})
	if err != nil {
		return err
	}

	texture := func(binding uint32, dim wgpu.TextureViewDimension) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageFragment,
			Texture:    wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: dim},
		}
	}
	d2 := wgpu.TextureViewDimension2D
	entries := [textureLayoutCount][]wgpu.BindGroupLayoutEntry{
		layoutOneTexture:  {texture(0, d2)},
		layoutTwoTextures: {texture(0, d2), texture(1, d2)},
		layoutSun:         {texture(0, d2), texture(1, wgpu.TextureViewDimension3D)},
		layoutCube:        {texture(0, wgpu.TextureViewDimensionCube)},
		layoutGBuffer:     {texture(0, d2), texture(1, d2), texture(2, d2), texture(3, d2), texture(4, d2)},
	}
	for i, e := range entries {
		b.textureLayouts[i], err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("Texture Bind Group Layout %d", i),
			Entries: e,
		})
		if err != nil {
			return err
		}
		b.pipelineLayouts[i], err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
			Label:            fmt.Sprintf("Pipeline Layout %d", i),
			BindGroupLayouts: []*wgpu.BindGroupLayout{b.globalsLayout, b.drawLayout, b.textureLayouts[i]},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
