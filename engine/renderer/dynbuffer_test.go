package renderer

import (
	"errors"
	"image/color"
	"testing"
)

// uploadedDynBuffer returns a 4-vertex, 6-index quad that has been locked, filled and unlocked.
func uploadedDynBuffer(t *testing.T, r Renderer) DynBuffer {
	t.Helper()
	buf, err := r.NewDynBuffer(4, 6)
	if err != nil {
		t.Fatalf("NewDynBuffer: %v", err)
	}
	if !buf.Lock() {
		t.Fatal("Lock of a new buffer failed")
	}
	copy(buf.Vertices(), []DynVertex{{-1, 1, 0}, {-1, -1, 0}, {1, 1, 0}, {1, -1, 0}})
	copy(buf.UVs(), []DynUV{{0, 0}, {0, 1}, {1, 0}, {1, 1}})
	for i := range buf.Colors() {
		buf.Colors()[i] = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	copy(buf.Indices(), []uint16{0, 1, 2, 2, 1, 3})
	if !buf.Unlock(4, 6, 4) {
		t.Fatal("Unlock failed")
	}
	return buf
}

func TestNewDynBufferRejectsZeroCapacity(t *testing.T) {
	r, fb := newTestRenderer(t)

	for _, size := range [][2]uint32{{0, 3}, {3, 0}} {
		if _, err := r.NewDynBuffer(size[0], size[1]); !errors.Is(err, ErrDynBufferSize) {
			t.Errorf("NewDynBuffer(%d, %d) = %v, want ErrDynBufferSize", size[0], size[1], err)
		}
	}
	if len(fb.dynBuffers) != 0 {
		t.Errorf("backend allocated %d buffers", len(fb.dynBuffers))
	}
}

func TestDynBufferUnlockWritesStreams(t *testing.T) {
	r, fb := newTestRenderer(t)
	buf := uploadedDynBuffer(t, r)

	gpu := fb.dynBuffers[0]
	if gpu.maxVertices != 4 || gpu.maxIndices != 6 {
		t.Errorf("capacity = %d/%d, want 4/6", gpu.maxVertices, gpu.maxIndices)
	}
	want := map[DynStream]int{
		DynStreamPositions: 4 * dynPositionSize,
		DynStreamUVs:       4 * dynUVSize,
		DynStreamColors:    4 * dynColorSize,
		DynStreamIndices:   12,
	}
	for s, n := range want {
		if gpu.writes[s] != 1 || gpu.lastWrite[s] != n {
			t.Errorf("stream %d: %d writes of %d bytes, want 1 write of %d", s, gpu.writes[s], gpu.lastWrite[s], n)
		}
	}
	if !buf.InVRAM() || buf.Locked() {
		t.Errorf("after Unlock: InVRAM=%v Locked=%v", buf.InVRAM(), buf.Locked())
	}
}

func TestDynBufferUnlockColorsOnly(t *testing.T) {
	r, fb := newTestRenderer(t)
	buf := uploadedDynBuffer(t, r)
	gpu := fb.dynBuffers[0]
	before := gpu.writes

	if !buf.Lock() {
		t.Fatal("relock failed")
	}
	if buf.InVRAM() {
		t.Error("InVRAM still set after Lock")
	}
	buf.Colors()[2] = color.RGBA{R: 1, G: 2, B: 3, A: 4}
	if !buf.UnlockColors() {
		t.Fatal("UnlockColors failed")
	}

	for _, s := range []DynStream{DynStreamPositions, DynStreamUVs, DynStreamIndices} {
		if gpu.writes[s] != before[s] {
			t.Errorf("stream %d rewritten by UnlockColors", s)
		}
	}
	if gpu.writes[DynStreamColors] != before[DynStreamColors]+1 {
		t.Fatalf("colour stream writes = %d, want %d", gpu.writes[DynStreamColors], before[DynStreamColors]+1)
	}
	got := gpu.streams[DynStreamColors][8:12]
	if got[0] != 1 || got[1] != 2 || got[2] != 3 || got[3] != 4 {
		t.Errorf("colour 2 uploaded as %v", got)
	}
	for _, off := range []int{0, 4, 12} {
		if c := gpu.streams[DynStreamColors][off : off+4]; c[0] != 255 || c[3] != 255 {
			t.Errorf("colour at byte %d = %v, want untouched white", off, c)
		}
	}
	if idx := gpu.streams[DynStreamIndices]; le.Uint16(idx[10:]) != 3 {
		t.Errorf("last index = %d after UnlockColors, want 3", le.Uint16(idx[10:]))
	}
	if !buf.InVRAM() {
		t.Error("InVRAM not set after UnlockColors")
	}
}

func TestDynBufferIndicesPadded(t *testing.T) {
	r, fb := newTestRenderer(t)
	buf, err := r.NewDynBuffer(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	buf.Lock()
	copy(buf.Indices(), []uint16{0, 1, 2})
	buf.Unlock(3, 3, 0)

	if n := fb.dynBuffers[0].lastWrite[DynStreamIndices]; n != 8 {
		t.Errorf("index upload = %d bytes, want 8", n)
	}
	if fb.dynBuffers[0].writes[DynStreamColors] != 0 {
		t.Error("colours written with a zero colour count")
	}
}

func TestDynBufferPartialOddIndexUnlock(t *testing.T) {
	r, fb := newTestRenderer(t)
	buf, err := r.NewDynBuffer(4, 6)
	if err != nil {
		t.Fatal(err)
	}
	buf.Lock()
	copy(buf.Indices(), []uint16{3, 1, 2, 5, 1, 3})
	buf.Unlock(0, 6, 0)

	buf.Lock()
	copy(buf.Indices(), []uint16{0, 2, 1})
	if !buf.Unlock(0, 3, 0) {
		t.Fatal("Unlock failed")
	}

	gpu := fb.dynBuffers[0]
	if n := gpu.lastWrite[DynStreamIndices]; n != 8 {
		t.Errorf("partial index upload = %d bytes, want 8", n)
	}
	want := []uint16{0, 2, 1, 5, 1, 3}
	for i, w := range want {
		if got := le.Uint16(gpu.streams[DynStreamIndices][i*2:]); got != w {
			t.Errorf("GPU index %d = %d, want %d", i, got, w)
		}
	}
}

func TestDynBufferFullOddIndexUnlock(t *testing.T) {
	r, fb := newTestRenderer(t)
	buf, err := r.NewDynBuffer(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	buf.Lock()
	copy(buf.Indices(), []uint16{2, 1, 0})
	buf.Unlock(0, 3, 0)

	idx := fb.dynBuffers[0].streams[DynStreamIndices]
	for i, w := range []uint16{2, 1, 0, 0} {
		if got := le.Uint16(idx[i*2:]); got != w {
			t.Errorf("GPU index word %d = %d, want %d", i, got, w)
		}
	}
}

func TestDynBufferLockRules(t *testing.T) {
	r, _ := newTestRenderer(t)
	buf, err := r.NewDynBuffer(4, 6)
	if err != nil {
		t.Fatal(err)
	}

	if buf.Unlock(1, 1, 1) {
		t.Error("Unlock of an unlocked buffer succeeded")
	}
	if !buf.Lock() {
		t.Fatal("Lock failed")
	}
	if buf.Lock() {
		t.Error("second Lock succeeded")
	}
	if buf.Free() {
		t.Error("Free of a locked buffer succeeded")
	}
	buf.Unlock(0, 0, 0)
	if !buf.Free() {
		t.Fatal("Free failed")
	}
	if !buf.Released() {
		t.Error("unqueued buffer not released by Free")
	}
	if buf.Free() {
		t.Error("second Free succeeded")
	}
	if buf.Lock() {
		t.Error("Lock of a freed buffer succeeded")
	}
}

func TestDynBufferQueueLifecycle(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	buf := uploadedDynBuffer(t, r)

	if err := r.StartScene(); err != nil {
		t.Fatal(err)
	}
	r.DrawDynBuffer(DefaultDynBufferDrawParams(buf, tex, 6))
	r.DrawDynBuffer(DefaultDynBufferDrawParams(buf, tex, 3))
	if buf.QueueCount() != 2 {
		t.Fatalf("queue count = %d, want 2", buf.QueueCount())
	}
	if buf.Lock() {
		t.Error("Lock of a queued buffer succeeded")
	}
	if !buf.Free() {
		t.Fatal("Free of a queued buffer failed")
	}
	if buf.Released() {
		t.Fatal("queued buffer released before its draws executed")
	}
	if err := r.EndScene(); err != nil {
		t.Fatal(err)
	}

	if buf.QueueCount() != 0 {
		t.Errorf("queue count after EndScene = %d", buf.QueueCount())
	}
	if !buf.Released() || fb.dynBuffers[0].released != 1 {
		t.Error("freed buffer not reclaimed after its draws executed")
	}
	draws := fb.ops("DrawDynBuffer")
	if len(draws) != 2 || draws[0].indices != 6 || draws[1].indices != 3 {
		t.Fatalf("DrawDynBuffer calls = %+v", draws)
	}
	if got := r.TriangleCount(); got != 3 {
		t.Errorf("TriangleCount = %d, want 3", got)
	}
}

func TestDynBufferQueueReturnsToZero(t *testing.T) {
	r, _ := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	buf := uploadedDynBuffer(t, r)

	frame(t, r, func() {
		r.DrawDynBuffer(DefaultDynBufferDrawParams(buf, tex, 6))
	})
	if buf.QueueCount() != 0 {
		t.Fatalf("queue count = %d, want 0", buf.QueueCount())
	}
	if !buf.Free() || !buf.Released() {
		t.Error("Free after the frame did not release the buffer")
	}
}

func TestDynBufferDrawRefusals(t *testing.T) {
	r, fb := newTestRenderer(t)
	tex := r.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	fresh, err := r.NewDynBuffer(4, 6)
	if err != nil {
		t.Fatal(err)
	}
	locked := uploadedDynBuffer(t, r)
	locked.Lock()
	ok := uploadedDynBuffer(t, r)

	frame(t, r, func() {
		r.DrawDynBuffer(DefaultDynBufferDrawParams(fresh, tex, 3))
		r.DrawDynBuffer(DefaultDynBufferDrawParams(locked, tex, 3))
		r.DrawDynBuffer(DefaultDynBufferDrawParams(ok, tex, 7))
		r.DrawDynBuffer(DefaultDynBufferDrawParams(ok, tex, 0))
		r.DrawDynBuffer(DefaultDynBufferDrawParams(ok, InvalidTexture, 3))
		r.DrawDynBuffer(DefaultDynBufferDrawParams(nil, tex, 3))
	})

	if n := len(fb.ops("DrawDynBuffer")); n != 0 {
		t.Errorf("%d refused draws reached the backend", n)
	}
	for _, b := range []DynBuffer{fresh, locked, ok} {
		if b.QueueCount() != 0 {
			t.Errorf("refused draw left queue count %d", b.QueueCount())
		}
	}
}

func TestDynBufferFromAnotherRenderer(t *testing.T) {
	r1, fb1 := newTestRenderer(t)
	r2, _ := newTestRenderer(t)
	tex := r1.LoadTexture(solidPixels(2, 2, color.RGBA{A: 255}))
	foreign := uploadedDynBuffer(t, r2)

	frame(t, r1, func() {
		r1.DrawDynBuffer(DefaultDynBufferDrawParams(foreign, tex, 3))
	})
	if n := len(fb1.ops("DrawDynBuffer")); n != 0 {
		t.Errorf("foreign buffer drawn %d times", n)
	}
}
