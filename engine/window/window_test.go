package window

import "testing"

func TestClampSize(t *testing.T) {
	w := &engineWindow{}
	WithMinSize(320, 200)(w)
	WithMaxSize(1920, 1080)(w)

	tests := []struct {
		inW, inH   int
		outW, outH int
	}{
		{800, 600, 800, 600},
		{100, 50, 320, 200},
		{4000, 3000, 1920, 1080},
		{100, 3000, 320, 1080},
	}
	for _, tt := range tests {
		if gw, gh := w.clampSize(tt.inW, tt.inH); gw != tt.outW || gh != tt.outH {
			t.Errorf("clampSize(%d, %d) = %d, %d; want %d, %d", tt.inW, tt.inH, gw, gh, tt.outW, tt.outH)
		}
	}
}

func TestUninitialisedWindow(t *testing.T) {
	w := &engineWindow{width: 640, height: 480}
	if w.IsRunning() {
		t.Error("window without a platform window reports running")
	}
	if w.SurfaceDescriptor() != nil {
		t.Error("surface descriptor without a platform window")
	}
	if err := w.Close(); err == nil {
		t.Error("Close of an uninitialised window succeeded")
	}
	w.SetTitle("ignored")
	if w.title != "ignored" || w.Width() != 640 || w.Height() != 480 {
		t.Errorf("window state = %q %dx%d", w.title, w.Width(), w.Height())
	}
}
