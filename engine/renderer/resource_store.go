package renderer

import (
	"fmt"
	"image/color"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// meshResource is an uploaded mesh. It is immutable once created.
type meshResource struct {
	name       string
	gpu        GPUMesh
	diffuse    GPUTexture
	normals    GPUTexture
	topology   Topology
	indexCount uint32
	triangles  uint32
}

// textureResource is an uploaded 2D texture.
type textureResource struct {
	gpu           GPUTexture
	width, height uint32
	sampling      TextureSampling
}

// resourceStore owns every uploaded mesh and texture. Handles are 1-based indices into
// the arenas and are never reused.
type resourceStore struct {
	backend RendererBackend
	log     *slog.Logger
	quality Quality

	meshes   []*meshResource
	textures []*textureResource

	// meshLimit and textureLimit bound handle allocation.
	meshLimit    int
	textureLimit int

	skybox        GPUTexture
	skyboxEnabled bool

	// fallbacks replace mesh textures that fail to load.
	whiteTexture  GPUTexture
	normalTexture GPUTexture
}

func newResourceStore(backend RendererBackend, log *slog.Logger, q Quality) *resourceStore {
	return &resourceStore{
		backend:       backend,
		log:           log,
		quality:       q,
		meshLimit:     maxHandle,
		textureLimit:  maxHandle,
		skyboxEnabled: true,
	}
}

// loadMesh validates and uploads a mesh. Soft failures log and return InvalidMesh.
// Exhausting the handle range panics with ErrHandlesExhausted.
func (s *resourceStore) loadMesh(src MeshSource) MeshHandle {
	if src == nil {
		s.log.Warn("renderer: mesh load refused", "error", fmt.Errorf("%w: nil mesh source", ErrInvalidSource))
		return InvalidMesh
	}
	if len(s.meshes) >= s.meshLimit {
		panic(fmt.Errorf("%w: %d meshes loaded", ErrHandlesExhausted, len(s.meshes)))
	}

	name := src.Name()
	geom, err := src.Geometry()
	if err == nil {
		err = validateGeometry(geom)
	}
	if err != nil {
		s.log.Warn("renderer: mesh load failed", "mesh", name, "error", err)
		return InvalidMesh
	}

	gpu, err := s.backend.CreateMesh(encodeMeshVertices(geom.Vertices), encodeIndices32(geom.Indices))
	if err != nil {
		s.log.Error("renderer: mesh upload failed", "mesh", name, "error", err)
		return InvalidMesh
	}

	res := &meshResource{
		name:       name,
		gpu:        gpu,
		topology:   geom.Topology,
		indexCount: uint32(len(geom.Indices)),
		triangles:  geom.triangleCount(),
	}
	res.diffuse = s.meshTexture(name, "diffuse", src.DiffuseSpecular(), s.fallbackWhite)
	res.normals = s.meshTexture(name, "normals", src.NormalsEmissive(), s.fallbackNormal)

	s.meshes = append(s.meshes, res)
	h := MeshHandle(len(s.meshes))
	s.log.Debug("renderer: mesh loaded", "mesh", name, "handle", h, "triangles", res.triangles)
	return h
}

// meshTexture uploads one of the mesh's textures, falling back to a 1×1 default on failure.
func (s *resourceStore) meshTexture(mesh, slot string, src PixelSource, fallback func() GPUTexture) GPUTexture {
	if src != nil {
		tex, err := s.uploadPixels(src, SampleMaterial)
		if err == nil {
			return tex
		}
		s.log.Warn("renderer: mesh texture unavailable, using default", "mesh", mesh, "slot", slot, "error", err)
	}
	return fallback()
}

func (s *resourceStore) fallbackWhite() GPUTexture {
	if s.whiteTexture == nil {
		s.whiteTexture = s.solidTexture(color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF})
	}
	return s.whiteTexture
}

func (s *resourceStore) fallbackNormal() GPUTexture {
	if s.normalTexture == nil {
		s.normalTexture = s.solidTexture(color.RGBA{R: 0x80, G: 0x80})
	}
	return s.normalTexture
}

func (s *resourceStore) solidTexture(c color.RGBA) GPUTexture {
	tex, err := s.backend.CreateTexture([]*common.TextureStagingData{solidPixels(1, 1, c)}, SampleMaterial)
	if err != nil {
		s.log.Error("renderer: default texture upload failed", "error", err)
		return nil
	}
	return tex
}

// loadTexture uploads a 2D texture and returns its handle, or InvalidTexture.
func (s *resourceStore) loadTexture(src PixelSource, sampling TextureSampling) TextureHandle {
	if len(s.textures) >= s.textureLimit {
		s.log.Error("renderer: texture handle limit reached", "textures", len(s.textures))
		return InvalidTexture
	}
	if src == nil {
		s.log.Warn("renderer: texture load refused", "error", fmt.Errorf("%w: nil pixel source", ErrInvalidSource))
		return InvalidTexture
	}

	px, err := src.Pixels()
	if err == nil {
		err = px.Validate(4)
	}
	if err != nil {
		s.log.Warn("renderer: texture load failed", "error", err)
		return InvalidTexture
	}

	tex, err := s.upload(px, sampling)
	if err != nil {
		s.log.Error("renderer: texture upload failed", "error", err)
		return InvalidTexture
	}

	s.textures = append(s.textures, &textureResource{gpu: tex, width: px.Width, height: px.Height, sampling: sampling})
	return TextureHandle(len(s.textures))
}

func (s *resourceStore) uploadPixels(src PixelSource, sampling TextureSampling) (GPUTexture, error) {
	px, err := src.Pixels()
	if err != nil {
		return nil, err
	}
	if err := px.Validate(4); err != nil {
		return nil, err
	}
	return s.upload(px, sampling)
}

func (s *resourceStore) upload(px *common.TextureStagingData, sampling TextureSampling) (GPUTexture, error) {
	levels := []*common.TextureStagingData{px}
	if sampling == SampleMaterial {
		levels = buildMipChain(px, s.quality)
	}
	return s.backend.CreateTexture(levels, sampling)
}

// loadSkybox replaces the active skybox. On any failure the previous skybox stays active.
func (s *resourceStore) loadSkybox(src CubemapSource) bool {
	if src == nil {
		s.log.Warn("renderer: skybox load refused", "error", fmt.Errorf("%w: nil cubemap source", ErrInvalidSource))
		return false
	}
	faces, err := src.Faces()
	if err == nil {
		err = validateCubemap(faces)
	}
	if err != nil {
		s.log.Warn("renderer: skybox load failed", "error", err)
		return false
	}

	var rgba [6]*common.TextureStagingData
	for i, f := range faces {
		rgba[i] = f.ExpandRGB()
	}
	cube, err := s.backend.CreateCubemap(rgba)
	if err != nil {
		s.log.Error("renderer: skybox upload failed", "error", err)
		return false
	}

	if s.skybox != nil {
		s.skybox.Release()
	}
	s.skybox = cube
	return true
}

// mesh returns the mesh for h, or nil if the handle was never issued.
func (s *resourceStore) mesh(h MeshHandle) *meshResource {
	if h == InvalidMesh || int(h) > len(s.meshes) {
		return nil
	}
	return s.meshes[h-1]
}

// texture returns the texture for h, or nil if the handle was never issued.
func (s *resourceStore) texture(h TextureHandle) *textureResource {
	if h == InvalidTexture || int(h) > len(s.textures) {
		return nil
	}
	return s.textures[h-1]
}

// activeSkybox returns the skybox cubemap when one is loaded and enabled.
func (s *resourceStore) activeSkybox() GPUTexture {
	if !s.skyboxEnabled {
		return nil
	}
	return s.skybox
}

func (s *resourceStore) release() {
	for _, m := range s.meshes {
		m.gpu.Release()
		// Fallback textures are shared and released below.
		if m.diffuse != s.whiteTexture && m.diffuse != nil {
			m.diffuse.Release()
		}
		if m.normals != s.normalTexture && m.normals != nil {
			m.normals.Release()
		}
	}
	for _, t := range s.textures {
		t.gpu.Release()
	}
	for _, t := range []GPUTexture{s.skybox, s.whiteTexture, s.normalTexture} {
		if t != nil {
			t.Release()
		}
	}
	s.meshes, s.textures = nil, nil
	s.skybox, s.whiteTexture, s.normalTexture = nil, nil, nil
}

// validateGeometry checks index bounds and minimum sizes.
func validateGeometry(g *MeshGeometry) error {
	if g == nil {
		return fmt.Errorf("%w: nil geometry", ErrInvalidSource)
	}
	if len(g.Vertices) == 0 {
		return fmt.Errorf("%w: mesh has no vertices", ErrInvalidSource)
	}
	if len(g.Indices) < 3 {
		return fmt.Errorf("%w: mesh has %d indices, need at least 3", ErrInvalidSource, len(g.Indices))
	}
	if g.Topology == TopologyTriangleList && len(g.Indices)%3 != 0 {
		return fmt.Errorf("%w: triangle list has %d indices", ErrInvalidSource, len(g.Indices))
	}
	n := uint32(len(g.Vertices))
	for i, idx := range g.Indices {
		if g.Topology == TopologyTriangleStrip && idx == StripRestart {
			continue
		}
		if idx >= n {
			return fmt.Errorf("%w: index %d at %d out of range for %d vertices", ErrInvalidSource, idx, i, n)
		}
	}
	return nil
}

// validateCubemap checks that all six faces are square, identical in size and 3 bytes per pixel.
func validateCubemap(faces [6]*common.TextureStagingData) error {
	for i, f := range faces {
		if err := f.Validate(3); err != nil {
			return fmt.Errorf("%w: face %d: %v", ErrInvalidSource, i, err)
		}
		if f.Width != f.Height {
			return fmt.Errorf("%w: face %d is %dx%d, faces must be square", ErrInvalidSource, i, f.Width, f.Height)
		}
		if f.Width != faces[0].Width {
			return fmt.Errorf("%w: face %d is %d pixels wide, face 0 is %d", ErrInvalidSource, i, f.Width, faces[0].Width)
		}
	}
	return nil
}
