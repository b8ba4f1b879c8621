package renderer

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
)

// DynVertex is a dynamic buffer position.
type DynVertex struct {
	X, Y, Z float32
}

// DynUV is a dynamic buffer texture coordinate.
type DynUV struct {
	U, V float32
}

// DynBufferDrawParams describes one draw of a dynamic buffer.
type DynBufferDrawParams struct {
	Buffer     DynBuffer
	Texture    TextureHandle
	IndexCount uint32
	Transform  mgl32.Mat4
	Color      [4]float32

	// ApplyView and ApplyProj multiply the committed view and projection into the transform.
	ApplyView bool
	ApplyProj bool

	WriteZ     bool
	ReadZ      bool
	AlphaBlend bool

	// Strips draws the indices as triangle strips separated by DynStripRestart.
	Strips bool
}

// DefaultDynBufferDrawParams returns parameters that draw buf in world space with depth
// testing, depth writes and no blending.
func DefaultDynBufferDrawParams(buf DynBuffer, tex TextureHandle, indexCount uint32) DynBufferDrawParams {
	return DynBufferDrawParams{
		Buffer:     buf,
		Texture:    tex,
		IndexCount: indexCount,
		Transform:  mgl32.Ident4(),
		Color:      [4]float32{1, 1, 1, 1},
		ApplyView:  true,
		ApplyProj:  true,
		WriteZ:     true,
		ReadZ:      true,
	}
}

// DynBuffer is a caller-filled scratch geometry buffer. Arrays are sized at creation and may
// be written only between Lock and Unlock.
//
// Lifecycle: Lock → write arrays → Unlock(nv, ni, nc) → DrawDynBuffer any number of times → Free.
type DynBuffer interface {
	// Vertices returns the position array; its length is the vertex capacity.
	Vertices() []DynVertex

	// UVs returns the texture coordinate array, one per vertex.
	UVs() []DynUV

	// Colors returns the colour array, one per vertex.
	Colors() []color.RGBA

	// Indices returns the index array; its length is the index capacity.
	Indices() []uint16

	// Lock makes the arrays writable and marks the GPU copy stale.
	//
	// Returns:
	//   - bool: false if the buffer is already locked, freed, or queued for drawing this frame
	Lock() bool

	// Unlock uploads the first nv vertices and UVs, ni indices and nc colours. A zero count
	// leaves that part of the GPU copy unchanged.
	//
	// Returns:
	//   - bool: false if the buffer was not locked
	Unlock(nv, ni, nc uint32) bool

	// UnlockColors uploads the full colour array only.
	UnlockColors() bool

	// Free releases the buffer once every queued draw has been executed.
	//
	// Returns:
	//   - bool: false if the buffer is locked or already freed
	Free() bool

	// Locked reports whether the buffer is between Lock and Unlock.
	Locked() bool

	// InVRAM reports whether the buffer has been uploaded since its last Lock.
	InVRAM() bool

	// QueueCount is the number of draws queued this frame that have not executed yet.
	QueueCount() int

	// Released reports whether the GPU storage has been reclaimed.
	Released() bool
}

// dynBuffer is the implementation of the DynBuffer interface.
type dynBuffer struct {
	pool *dynBufferPool
	gpu  GPUDynBuffer

	vertices []DynVertex
	uvs      []DynUV
	colors   []color.RGBA
	indices  []uint16

	locked   bool
	inVRAM   bool
	wanted   bool
	released bool
	queued   int
}

var _ DynBuffer = &dynBuffer{}

// dynBufferPool owns every live dynamic buffer and reclaims freed buffers once their queued
// draws have executed.
type dynBufferPool struct {
	backend  RendererBackend
	contract *contractChecker
	live     []*dynBuffer
}

func newDynBufferPool(backend RendererBackend, contract *contractChecker) *dynBufferPool {
	return &dynBufferPool{backend: backend, contract: contract}
}

func (p *dynBufferPool) create(nVerts, nIndices uint32) (*dynBuffer, error) {
	if nVerts == 0 || nIndices == 0 {
		return nil, ErrDynBufferSize
	}
	gpu, err := p.backend.CreateDynBuffer(nVerts, nIndices)
	if err != nil {
		return nil, err
	}
	b := &dynBuffer{
		pool:     p,
		gpu:      gpu,
		vertices: make([]DynVertex, nVerts),
		uvs:      make([]DynUV, nVerts),
		colors:   make([]color.RGBA, nVerts),
		indices:  make([]uint16, nIndices),
		wanted:   true,
	}
	p.live = append(p.live, b)
	return b, nil
}

// reclaim releases every unwanted buffer whose queue is empty.
func (p *dynBufferPool) reclaim() {
	kept := p.live[:0]
	for _, b := range p.live {
		if !b.wanted && b.queued == 0 {
			b.release()
			continue
		}
		kept = append(kept, b)
	}
	clear(p.live[len(kept):])
	p.live = kept
}

func (p *dynBufferPool) releaseAll() {
	for _, b := range p.live {
		b.release()
	}
	p.live = nil
}

func (b *dynBuffer) Vertices() []DynVertex { return b.vertices }
func (b *dynBuffer) UVs() []DynUV          { return b.uvs }
func (b *dynBuffer) Colors() []color.RGBA  { return b.colors }
func (b *dynBuffer) Indices() []uint16     { return b.indices }
func (b *dynBuffer) Locked() bool          { return b.locked }
func (b *dynBuffer) InVRAM() bool          { return b.inVRAM }
func (b *dynBuffer) QueueCount() int       { return b.queued }
func (b *dynBuffer) Released() bool        { return b.released }

func (b *dynBuffer) Lock() bool {
	switch {
	case !b.wanted:
		return b.pool.contract.violation("lock of a freed dynbuffer")
	case b.locked:
		return b.pool.contract.violation("dynbuffer is already locked")
	case b.queued > 0:
		return b.pool.contract.violation("lock of a dynbuffer with %d queued draws", b.queued)
	}
	b.locked = true
	b.inVRAM = false
	return true
}

func (b *dynBuffer) Unlock(nv, ni, nc uint32) bool {
	if !b.locked {
		return b.pool.contract.violation("unlock of a dynbuffer that is not locked")
	}
	if int(nv) > len(b.vertices) || int(ni) > len(b.indices) || int(nc) > len(b.colors) {
		b.pool.contract.violation("unlock counts %d/%d/%d exceed capacity %d/%d", nv, ni, nc, len(b.vertices), len(b.indices))
		nv = min(nv, uint32(len(b.vertices)))
		ni = min(ni, uint32(len(b.indices)))
		nc = min(nc, uint32(len(b.colors)))
	}

	be := b.pool.backend
	if nv > 0 {
		be.WriteDynBuffer(b.gpu, DynStreamPositions, encodeDynPositions(b.vertices[:nv]))
		be.WriteDynBuffer(b.gpu, DynStreamUVs, encodeDynUVs(b.uvs[:nv]))
	}
	if ni > 0 {
		// Index writes cover whole 4-byte words; an odd count carries the
		// following index so the padding never clobbers it on the GPU.
		n := ni
		if n%2 == 1 && int(n) < len(b.indices) {
			n++
		}
		be.WriteDynBuffer(b.gpu, DynStreamIndices, encodeDynIndices(b.indices[:n]))
	}
	if nc > 0 {
		be.WriteDynBuffer(b.gpu, DynStreamColors, encodeDynColors(b.colors[:nc]))
	}

	b.locked = false
	b.inVRAM = true
	return true
}

func (b *dynBuffer) UnlockColors() bool {
	return b.Unlock(0, 0, uint32(len(b.colors)))
}

func (b *dynBuffer) Free() bool {
	switch {
	case !b.wanted:
		return b.pool.contract.violation("dynbuffer freed twice")
	case b.locked:
		return b.pool.contract.violation("free of a locked dynbuffer")
	}
	b.wanted = false
	if b.queued == 0 {
		b.pool.reclaim()
	}
	return true
}

// drawable reports whether the buffer may be queued for drawing.
func (b *dynBuffer) drawable() bool {
	switch {
	case b.released || !b.wanted:
		return b.pool.contract.violation("draw of a freed dynbuffer")
	case b.locked:
		return b.pool.contract.violation("draw of a locked dynbuffer")
	case !b.inVRAM:
		return b.pool.contract.violation("draw of a dynbuffer that was never uploaded")
	}
	return true
}

func (b *dynBuffer) release() {
	if b.released {
		return
	}
	b.gpu.Release()
	b.released = true
}
