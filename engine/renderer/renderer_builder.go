package renderer

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithQuality sets texture filtering, mip generation and super-sampling.
// When not specified, the default is QualityHigh.
//
// Parameters:
//   - q: the Quality level
//
// Returns:
//   - RendererBuilderOption: a function that applies the quality option to a renderer
func WithQuality(q Quality) RendererBuilderOption {
	return func(r *renderer) {
		r.quality = q
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithLogger routes renderer diagnostics to l. By default the renderer logs nothing.
//
// Log levels used:
//   - slog.LevelDebug: per-resource and resize diagnostics
//   - slog.LevelInfo: device and adapter lifecycle
//   - slog.LevelWarn: refused calls and assets that failed to load
//   - slog.LevelError: GPU uploads that failed
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDebugAssertions makes contract violations (drawing while no scene is open, drawing a
// locked dynamic buffer, stale handles) panic instead of being logged and ignored.
func WithDebugAssertions(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.debugAssertions = enabled
	}
}

// WithAmbient sets the initial ambient light colour.
func WithAmbient(red, green, blue float32) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingAmbient = &mgl32.Vec3{red, green, blue}
	}
}

// WithNoiseWorkers sets how many workers generate the sun noise volume in the background.
// The default is the number of CPUs.
func WithNoiseWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.noiseWorkers = max(n, 1)
	}
}

// WithDebugRenderMode sets the initial composition output.
func WithDebugRenderMode(mode DebugRenderMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingDebugMode = &mode
	}
}

// WithBufferSize fixes the offscreen render target size instead of deriving it from the
// viewport. The final image is scaled into the viewport at present.
//
// Parameters:
//   - width, height: the target size in pixels; zero restores viewport-derived sizing
//
// Returns:
//   - RendererBuilderOption: a function that applies the buffer size option to a renderer
func WithBufferSize(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.fixedBufferW, r.fixedBufferH = width, height
	}
}

// withBackend replaces the GPU backend. Used by tests.
func withBackend(b RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = b
	}
}

// withNoiseSize shrinks the noise volume. Used by tests.
func withNoiseSize(size uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.noiseSize = max(size, 1)
	}
}
