package renderer

import (
	"errors"
	"image/color"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Batch limits shared by the batch collector and the pass executor.
const (
	// MaxInstancesPerBatch is the largest number of mesh instances uploaded for one draw call.
	MaxInstancesPerBatch = 32

	// MaxQuadsPerBatch is the largest number of screen quads drawn by one draw call.
	MaxQuadsPerBatch = 256

	// MaxSFXTrianglesPerBatch is the largest number of effect triangles drawn by one draw call.
	MaxSFXTrianglesPerBatch = 1024

	// FirstLightStencil is the stencil id given to the first point light of a frame.
	FirstLightStencil = 1

	// MaxLightStencil caps the stencil id; later lights share it.
	MaxLightStencil = 200

	// stencilMesh marks pixels covered by a mesh during the model pass.
	stencilMesh = 0x00

	// stencilClear is the stencil value of pixels no mesh covered.
	stencilClear = 0xFF

	// StripRestart separates strips inside a triangle-strip mesh index buffer.
	StripRestart uint32 = 0xFFFFFFFF

	// DynStripRestart separates strips inside a dynamic buffer index array.
	DynStripRestart uint16 = 0xFFFF

	// maxHandle is the last handle value that can be allocated.
	maxHandle = 1<<32 - 2
)

var (
	// ErrSceneOpen is returned when StartScene is called while a scene is already open.
	ErrSceneOpen = errors.New("scene is already open")

	// ErrSceneClosed is returned when EndScene is called without a matching StartScene.
	ErrSceneClosed = errors.New("scene is not open")

	// ErrContractViolation wraps programmer errors that debug assertions turn into panics.
	ErrContractViolation = errors.New("renderer contract violation")

	// ErrHandlesExhausted is the panic value raised when no more mesh handles can be allocated.
	ErrHandlesExhausted = errors.New("mesh handle limit reached")

	// ErrInvalidSource is returned by sources and reported in logs when an asset cannot be used.
	ErrInvalidSource = errors.New("invalid asset source")

	// ErrDynBufferSize is returned when a dynamic buffer is requested with a zero capacity.
	ErrDynBufferSize = errors.New("dynamic buffer needs at least one vertex and one index")
)

// MeshHandle identifies an uploaded mesh. The zero value is invalid.
type MeshHandle uint32

// TextureHandle identifies an uploaded texture. The zero value is invalid.
type TextureHandle uint32

const (
	// InvalidMesh is returned by mesh loads that fail or are refused.
	InvalidMesh MeshHandle = 0

	// InvalidTexture is returned by texture loads that fail or are refused.
	InvalidTexture TextureHandle = 0
)

// FrameState reports whether a scene is being recorded.
type FrameState int

const (
	// FrameClosed allows resource loading and camera changes; draw calls are ignored.
	FrameClosed FrameState = iota

	// FrameOpen allows draw calls; resource loads return invalid handles.
	FrameOpen
)

// Quality controls texture filtering, mip generation and super-sampling.
type Quality int

const (
	// QualityLow uses nearest filtering and no mipmaps.
	QualityLow Quality = iota

	// QualityMedium uses bilinear magnification and nearest mip selection.
	QualityMedium

	// QualityHigh uses linear filtering across mip levels.
	QualityHigh

	// QualityHighest is QualityHigh rendered at twice the viewport resolution.
	QualityHighest
)

// superSample returns the render buffer scale factor for the quality level.
func (q Quality) superSample() uint32 {
	if q == QualityHighest {
		return 2
	}
	return 1
}

// SFXLayer selects which composition stage an effect batch is blended into.
type SFXLayer int

const (
	// SFXEmissive effects are drawn into the emissive target before composition.
	SFXEmissive SFXLayer = iota

	// SFXDiffuse effects are drawn over the composed scene and feed the warp target.
	SFXDiffuse
)

// DebugRenderMode selects what the composition pass outputs.
type DebugRenderMode uint32

const (
	DebugScene DebugRenderMode = iota
	DebugDiffuse
	DebugNormals
	DebugEmissive
	DebugSpecular
	DebugNoSpecular
	DebugNoDiffuse
	DebugLitVolumes
)

// Topology is the primitive layout of a mesh index buffer.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
)

// MeshVertex is one vertex of an uploaded mesh.
type MeshVertex struct {
	Position [3]float32
	UV       [2]float32
	Tangent  [3]float32
	Normal   [3]float32
}

// MeshGeometry is the indexed geometry handed over by a MeshSource.
type MeshGeometry struct {
	Vertices []MeshVertex
	Indices  []uint32
	Topology Topology
}

// triangleCount returns the number of triangles the index buffer describes.
// Strips restart at StripRestart; each strip segment of n indices holds n-2 triangles.
func (g *MeshGeometry) triangleCount() uint32 {
	if g.Topology == TopologyTriangleList {
		return uint32(len(g.Indices) / 3)
	}
	var total, run uint32
	for _, idx := range g.Indices {
		if idx == StripRestart {
			if run > 2 {
				total += run - 2
			}
			run = 0
			continue
		}
		run++
	}
	if run > 2 {
		total += run - 2
	}
	return total
}

// PixelSource supplies a 4-byte-per-pixel image. *common.TextureStagingData implements it.
type PixelSource interface {
	Pixels() (*common.TextureStagingData, error)
}

// PixelSourceFunc adapts a function to the PixelSource interface.
type PixelSourceFunc func() (*common.TextureStagingData, error)

// Pixels calls f.
func (f PixelSourceFunc) Pixels() (*common.TextureStagingData, error) { return f() }

// CubemapSource supplies six square, same-size, 3-byte-per-pixel faces in +X -X +Y -Y +Z -Z order.
// *common.CubemapStagingData implements it.
type CubemapSource interface {
	Faces() ([6]*common.TextureStagingData, error)
}

// MeshSource supplies the geometry and the two fixed-layout textures of one mesh.
type MeshSource interface {
	// Name identifies the mesh in logs.
	Name() string

	// Geometry returns the indexed vertex data.
	Geometry() (*MeshGeometry, error)

	// DiffuseSpecular returns the diffuse colour texture with specular intensity in alpha.
	DiffuseSpecular() PixelSource

	// NormalsEmissive returns the tangent-space normal texture with emissive masks in blue and alpha.
	NormalsEmissive() PixelSource
}

// InstanceRecord is the per-instance data of one drawn mesh.
type InstanceRecord struct {
	Transform mgl32.Mat4
	TeamHue   uint32
	Emissive  [2]uint32
}

// NewInstanceRecord returns an instance at the given transform with no hue shift or emissive colour.
func NewInstanceRecord(transform mgl32.Mat4) InstanceRecord {
	return InstanceRecord{Transform: transform}
}

// SetTeamHue stores a hue shift in [0, 1] packed into all four channels.
func (i *InstanceRecord) SetTeamHue(hue float32) {
	v := uint8(common.Clamp(hue, 0, 1) * 255)
	i.TeamHue = common.PackBGRA(color.RGBA{R: v, G: v, B: v, A: v})
}

// SetEmissive sets emissive channel 0 or 1.
func (i *InstanceRecord) SetEmissive(channel int, c color.RGBA) {
	if channel < 0 || channel > 1 {
		return
	}
	i.Emissive[channel] = common.PackBGRA(c)
}

// Translate replaces the translation column of the transform.
func (i *InstanceRecord) Translate(p mgl32.Vec3) {
	i.Transform[12], i.Transform[13], i.Transform[14] = p[0], p[1], p[2]
}

// PointLight is a spherical light volume.
type PointLight struct {
	Position mgl32.Vec3
	Radius   float32
	Color    mgl32.Vec3
}

// DirectionalLight lights every mesh pixel from one direction.
type DirectionalLight struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
}

// SunNoise animates the surface of a sun.
type SunNoise struct {
	Rotation float32
	DriftX   float32
	DriftY   float32
}

// Rect is an axis-aligned rectangle. Screen rectangles are in [0, 1] with y pointing down.
type Rect struct {
	X, Y, Width, Height float32
}

// TexRect is a texture sub-region given by its two opposite corners.
type TexRect struct {
	U0, V0, U1, V1 float32
}

// ScreenQuad is one textured, per-corner-coloured overlay quad.
// Corners are ordered top-left, bottom-left, top-right, bottom-right.
type ScreenQuad struct {
	Screen  Rect
	Tex     TexRect
	Corners [4]color.RGBA
}

// SetColor gives all four corners the same colour.
func (q *ScreenQuad) SetColor(c color.RGBA) {
	q.Corners = [4]color.RGBA{c, c, c, c}
}

// FXVertex is one corner of an effect triangle.
type FXVertex struct {
	X, Y, Z float32
	U, V    float32
}

// FXTriangle is one camera-facing effect triangle.
type FXTriangle struct {
	Vert [3]FXVertex
}

// Viewport is the presentation rectangle in surface pixels.
type Viewport struct {
	X, Y          int
	Width, Height uint32
}
