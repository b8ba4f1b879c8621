package loader

import (
	"io"
)

// loaderBackend defines the generic interface for importing meshes from files or streams.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load imports every triangle primitive of the file at path into one mesh.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *Mesh: the imported mesh and its two textures
	//   - error: error if loading fails
	Load(path string) (*Mesh, error)

	// LoadReader imports a mesh from a reader stream. External resources cannot be resolved.
	//
	// Parameters:
	//   - name: the mesh name used in logs
	//   - r: the reader providing the file data
	//
	// Returns:
	//   - *Mesh: the imported mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (*Mesh, error)
}
