package renderer

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// PassID names one of the fixed render passes of a frame, in execution order.
type PassID int

const (
	PassModel PassID = iota
	PassLighting
	PassSunSpheres
	PassCoronas
	PassEmissiveSFX
	PassComposition
	PassDynBuffers
	PassDiffuseSFX
	PassPostEffect
	PassScreenQuads
	passCount
)

var passNames = [...]string{
	"model", "lighting", "sun spheres", "coronas", "emissive sfx",
	"composition", "dynbuffers", "diffuse sfx", "post effect", "screen quads",
}

func (p PassID) String() string {
	if p < 0 || p >= passCount {
		return "unknown"
	}
	return passNames[p]
}

// Program selects the shader pair and vertex layout of a draw.
type Program int

const (
	ProgramModel Program = iota
	ProgramPointLight
	ProgramDirectionalLight
	ProgramSun
	ProgramCorona
	ProgramSFXEmissive
	ProgramSFXDiffuse
	ProgramSkybox
	ProgramComposition
	ProgramDynBuffer
	ProgramPostEffect
	ProgramScreenQuad
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// DepthTest is the comparison applied against the depth buffer.
type DepthTest int

const (
	DepthAlways DepthTest = iota
	DepthLess
	DepthLessEqual
	DepthGreaterEqual
)

// StencilMode selects one of the fixed stencil configurations used by the passes.
type StencilMode int

const (
	// StencilOff leaves the stencil buffer untouched.
	StencilOff StencilMode = iota

	// StencilWriteMesh always passes and replaces the stencil value with the reference.
	StencilWriteMesh

	// StencilMarkLight passes where reference > stencil and replaces the stencil value.
	StencilMarkLight

	// StencilMatchLight passes where reference == stencil.
	StencilMatchLight

	// StencilBelowLight passes where reference > stencil and keeps the stencil value.
	StencilBelowLight

	// StencilMeshOnly passes where reference != stencil.
	StencilMeshOnly
)

// BlendMode selects colour blending for every target of a draw.
type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAdditive
	BlendAlpha
)

// DrawState is the complete fixed-function state of a draw. It is comparable and is used
// as the pipeline cache key together with the current pass.
type DrawState struct {
	Program    Program
	Topology   Topology
	Cull       CullMode
	Depth      DepthTest
	DepthWrite bool
	Stencil    StencilMode
	ColorWrite bool
	Blend      BlendMode
}

// TextureSampling selects how a 2D texture is filtered.
type TextureSampling int

const (
	// SampleMaterial uses the quality-dependent repeat sampler.
	SampleMaterial TextureSampling = iota

	// SampleClamp uses a linear clamp-to-edge sampler and ignores mip levels.
	SampleClamp
)

// DynStream selects one of the four arrays of a dynamic buffer.
type DynStream int

const (
	DynStreamPositions DynStream = iota
	DynStreamUVs
	DynStreamColors
	DynStreamIndices
)

// TargetConfig sizes the offscreen render targets and the presentation surface.
type TargetConfig struct {
	BufferWidth, BufferHeight   uint32
	SurfaceWidth, SurfaceHeight uint32
	Quality                     Quality
}

// GPUTexture is a backend texture.
type GPUTexture interface {
	Release()
}

// GPUMesh is a backend vertex and index buffer pair.
type GPUMesh interface {
	Release()
}

// GPUDynBuffer is the backend storage of one dynamic buffer.
type GPUDynBuffer interface {
	Release()
}

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}

// wgpuRendererBackend is the GPU surface the pass executor drives. Resource creation calls
// return errors; draw calls record failures that EndFrame reports. Byte slices passed to
// draw and write calls are only valid for the duration of the call.
type wgpuRendererBackend interface {
	// Configure (re)creates the offscreen targets and configures the presentation surface.
	//
	// Parameters:
	//   - cfg: target and surface dimensions plus the quality level
	//
	// Returns:
	//   - error: an error if a target could not be created
	Configure(cfg TargetConfig) error

	// SetPresentMode sets the surface present mode. It takes effect at the next Configure.
	SetPresentMode(mode PresentMode)

	// CreateTexture uploads a 2D RGBA texture. levels holds the full mip chain, level 0 first.
	CreateTexture(levels []*common.TextureStagingData, sampling TextureSampling) (GPUTexture, error)

	// CreateCubemap uploads six square RGBA faces in +X -X +Y -Y +Z -Z order.
	CreateCubemap(faces [6]*common.TextureStagingData) (GPUTexture, error)

	// CreateVolumeTexture uploads a size³ RGBA volume sampled with repeat addressing.
	CreateVolumeTexture(size uint32, rgba []byte) (GPUTexture, error)

	// CreateMesh uploads packed MeshVertex data and uint32 indices.
	CreateMesh(vertices, indices []byte) (GPUMesh, error)

	// CreateDynBuffer allocates storage for a dynamic buffer with fixed capacities.
	CreateDynBuffer(maxVertices, maxIndices uint32) (GPUDynBuffer, error)

	// WriteDynBuffer copies data to the start of one stream of a dynamic buffer.
	WriteDynBuffer(buf GPUDynBuffer, stream DynStream, data []byte)

	// WriteGlobals replaces the shared per-frame uniform block.
	WriteGlobals(data []byte)

	// BeginFrame starts recording a frame.
	BeginFrame() error

	// BeginPass opens the render targets of the given pass, clearing those the pass owns.
	BeginPass(pass PassID)

	// SetState selects the fixed-function state for subsequent draws.
	SetState(state DrawState)

	// SetStencilReference sets the stencil reference value for subsequent draws.
	SetStencilReference(ref uint32)

	// DrawMesh draws instanceCount packed instance records of a mesh.
	DrawMesh(mesh GPUMesh, diffuse, normals GPUTexture, instances []byte, instanceCount, indexCount uint32)

	// DrawLight draws a point light sphere or a full-screen directional light, selected by
	// the current program, with the given light uniform.
	DrawLight(uniform []byte)

	// DrawFullscreen draws a full-screen triangle with the current program.
	DrawFullscreen()

	// DrawSkybox draws the cubemap around the camera.
	DrawSkybox(cube GPUTexture)

	// DrawBillboards draws vertexCount packed FX vertices as a triangle list. Suns bind a
	// ramp texture and the noise volume, coronas bind nothing, effects bind two textures.
	DrawBillboards(tex0, tex1 GPUTexture, vertices []byte, vertexCount uint32)

	// DrawDynBuffer draws indexCount indices of a dynamic buffer.
	DrawDynBuffer(buf GPUDynBuffer, tex GPUTexture, uniform []byte, indexCount uint32)

	// DrawScreenQuads draws quadCount packed quads.
	DrawScreenQuads(tex GPUTexture, vertices []byte, quadCount uint32)

	// EndPass closes the current pass.
	EndPass()

	// EndFrame blits the final target into the viewport, submits and presents.
	//
	// Returns:
	//   - error: the first failure recorded while the frame was being encoded
	EndFrame(viewport Viewport) error

	// Release destroys every backend object.
	Release()
}
