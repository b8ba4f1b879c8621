package loader

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// Mesh is an imported mesh ready to be handed to Renderer.LoadMesh.
type Mesh struct {
	name            string
	geometry        *renderer.MeshGeometry
	diffuseSpecular renderer.PixelSource
	normalsEmissive renderer.PixelSource
}

var _ renderer.MeshSource = &Mesh{}

// NewMesh wraps geometry and textures built elsewhere. Either texture may be nil.
func NewMesh(name string, geometry *renderer.MeshGeometry, diffuseSpecular, normalsEmissive renderer.PixelSource) *Mesh {
	return &Mesh{
		name:            name,
		geometry:        geometry,
		diffuseSpecular: diffuseSpecular,
		normalsEmissive: normalsEmissive,
	}
}

func (m *Mesh) Name() string { return m.name }

func (m *Mesh) Geometry() (*renderer.MeshGeometry, error) {
	if m.geometry == nil {
		return nil, fmt.Errorf("%w: mesh %q has no geometry", renderer.ErrInvalidSource, m.name)
	}
	return m.geometry, nil
}

func (m *Mesh) DiffuseSpecular() renderer.PixelSource { return m.diffuseSpecular }

func (m *Mesh) NormalsEmissive() renderer.PixelSource { return m.normalsEmissive }

// importOptions are the vertex conventions applied by every backend.
type importOptions struct {
	flipV       bool
	flipWinding bool
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	log     *slog.Logger
	options importOptions

	meshCache map[string]renderer.MeshSource

	backend loaderBackend
}

// Loader defines the public-facing interface for importing and caching meshes.
// It abstracts the file format (glTF, GLB, etc.) behind a generic backend.
type Loader interface {
	// Load imports a mesh file and caches the result.
	// If the mesh is already cached (by file path), the cached version is returned.
	//
	// Parameters:
	//   - path: the file path to the mesh file
	//
	// Returns:
	//   - renderer.MeshSource: the loaded and cached mesh
	//   - error: error if loading fails
	Load(path string) (renderer.MeshSource, error)

	// LoadReader imports a mesh from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing mesh data
	//
	// Returns:
	//   - renderer.MeshSource: the loaded mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (renderer.MeshSource, error)

	// Get retrieves a cached mesh by name. Returns nil if not found.
	Get(name string) renderer.MeshSource

	// Meshes returns a copy of the mesh cache keyed by name.
	Meshes() map[string]renderer.MeshSource
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		log:       slog.Default(),
		meshCache: make(map[string]renderer.MeshSource),
	}

	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l.log, &l.options)
	}
	return l
}

func (l *loader) Load(path string) (renderer.MeshSource, error) {
	l.mu.RLock()
	if cached, ok := l.meshCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	m, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	l.mu.Lock()
	l.meshCache[path] = m
	l.mu.Unlock()
	l.log.Debug("loader: mesh imported", "path", path, "vertices", len(m.geometry.Vertices), "indices", len(m.geometry.Indices))

	return m, nil
}

func (l *loader) LoadReader(name string, r io.Reader) (renderer.MeshSource, error) {
	l.mu.RLock()
	if cached, ok := l.meshCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	if l.backend == nil {
		return nil, fmt.Errorf("no loader backend configured")
	}
	m, err := l.backend.LoadReader(name, r)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}

	l.mu.Lock()
	l.meshCache[name] = m
	l.mu.Unlock()

	return m, nil
}

func (l *loader) Get(name string) renderer.MeshSource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Meshes() map[string]renderer.MeshSource {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]renderer.MeshSource, len(l.meshCache))
	for k, v := range l.meshCache {
		out[k] = v
	}
	return out
}

// resolveBackend picks the backend for the file extension of path.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
		if l.backend == nil {
			return nil, fmt.Errorf("no loader backend configured")
		}
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported mesh format %q", ext)
	}
}
