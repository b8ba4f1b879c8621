package loader

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger is an option builder that sets the logger used for import diagnostics.
//
// Parameters:
//   - l: the logger; nil keeps slog.Default()
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(l *slog.Logger) LoaderBuilderOption {
	return func(ld *loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithFlipV flips the V texture coordinate of imported vertices.
// glTF places V=0 at the top of the image; enable this for textures authored bottom-up.
func WithFlipV(flip bool) LoaderBuilderOption {
	return func(l *loader) {
		l.options.flipV = flip
	}
}

// WithFlipWinding reverses the winding order of imported triangles.
func WithFlipWinding(flip bool) LoaderBuilderOption {
	return func(l *loader) {
		l.options.flipWinding = flip
	}
}

// WithMesh is an option builder that pre-populates the mesh cache.
//
// Parameters:
//   - key: the cache key for the mesh
//   - src: the mesh source to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the mesh option to a loader
func WithMesh(key string, src renderer.MeshSource) LoaderBuilderOption {
	return func(l *loader) {
		l.meshCache[key] = src
	}
}
