package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

var _ renderer.Surface = window.Window(nil)

// FrameCallback receives the time since the previous frame and the renderer.
type FrameCallback func(deltaTime float32, r renderer.Renderer)

// engine implements the Engine interface.
// Coordinates the tick loop, the render loop and the window message loop.
type engine struct {
	log *slog.Logger

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window          window.Window
	windowOptions   []window.WindowBuilderOption
	renderer        renderer.Renderer
	rendererOptions []renderer.RendererBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate  time.Duration
	tickCallback    func(deltaTime float32)
	prepareCallback FrameCallback
	frameCallback   FrameCallback

	// Projection rebuilt on every resize. orthoHeight > 0 selects an orthographic
	// projection that many world units tall.
	fovY, zNear, zFar float32
	orthoHeight       float32

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It owns the window and the renderer and drives one scene per frame.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer drawing into the window.
	Renderer() renderer.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// ProfilerEnabled reports whether profiling output is on.
	ProfilerEnabled() bool

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, physics and input processing.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetPrepareCallback registers the function called before each scene is opened.
	// Camera, viewport and ambient changes made here apply to the frame that follows.
	SetPrepareCallback(callback FrameCallback)

	// SetFrameCallback registers the function called between StartScene and EndScene.
	// Use this to issue draw calls.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetFrameCallback(callback FrameCallback)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the engine loops and blocks until the window closes. The renderer and the
	// window are released before Run returns.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the window (unless one is supplied with WithWindow) and a renderer
// drawing into it.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error if the window or the renderer could not be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		log:             slog.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		fovY:            mgl32.DegToRad(45),
		zNear:           0.1,
		zFar:            1000,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow(e.windowOptions...)
		if err != nil {
			return nil, err
		}
		e.window = w
	}

	opts := append([]renderer.RendererBuilderOption{renderer.WithLogger(e.log)}, e.rendererOptions...)
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, e.window, opts...)
	if err != nil {
		_ = e.window.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	e.renderer = r
	e.profiler = profiler.NewProfiler(e.log, time.Second)

	e.applySize(e.window.Width(), e.window.Height())
	e.window.SetResizeCallback(e.applySize)

	return e, nil
}

// applySize resizes the surface, fills it with the viewport and rebuilds the projection.
// All three changes take effect at the next StartScene.
func (e *engine) applySize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.renderer.Resize(width, height)
	e.renderer.SetViewport(0, 0, uint32(width), uint32(height))
	e.renderer.SetProjectionMatrix(e.projection(width, height), e.zNear)
}

// projection builds the configured projection for a width×height surface.
func (e *engine) projection(width, height int) mgl32.Mat4 {
	if e.orthoHeight <= 0 {
		return common.PerspectiveZO(e.fovY, uint32(width), uint32(height), e.zNear, e.zFar)
	}
	halfH := e.orthoHeight / 2
	halfW := halfH
	if height > 0 {
		halfW = halfH * float32(width) / float32(height)
	}
	return common.OrthographicZO(-halfW, halfW, -halfH, halfH, e.zNear, e.zFar)
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Run() {
	e.running.Store(true)
	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.renderer.Release()
	if err := e.window.Close(); err != nil {
		e.log.Warn("engine: window close failed", "error", err)
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the engine and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration prepares the camera, records one scene and presents it.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("engine: render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.renderFrame(dt)

		if e.profilingEnabled.Load() {
			e.profiler.Tick(e.renderer.TriangleCount())
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// renderFrame runs one StartScene/EndScene cycle around the callbacks.
func (e *engine) renderFrame(dt float32) {
	r := e.renderer
	if e.prepareCallback != nil {
		e.prepareCallback(dt, r)
	}
	if err := r.StartScene(); err != nil {
		e.log.Error("engine: start scene failed", "error", err)
		return
	}
	if e.frameCallback != nil {
		e.frameCallback(dt, r)
	}
	if err := r.EndScene(); err != nil {
		e.log.Error("engine: frame failed", "error", err)
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

func (e *engine) ProfilerEnabled() bool {
	return e.profilingEnabled.Load()
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update so the latest rate wins.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetPrepareCallback(callback FrameCallback) {
	e.prepareCallback = callback
}

func (e *engine) SetFrameCallback(callback FrameCallback) {
	e.frameCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
