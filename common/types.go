// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// TextureStagingData holds tightly packed pixel data pending GPU upload.
// 2D textures use 4 bytes per pixel (RGBA), cubemap faces use 3 bytes per pixel (RGB).
type TextureStagingData struct {
	// Data is the row-major pixel data with no row padding.
	Data []byte
	// Width is the width of the image in pixels.
	Width uint32
	// Height is the height of the image in pixels.
	Height uint32
}

// Pixels returns the staging data itself so that a *TextureStagingData can be handed to the renderer
// anywhere a pixel source is expected.
//
// Returns:
//   - *TextureStagingData: the receiver
//   - error: always nil
func (t *TextureStagingData) Pixels() (*TextureStagingData, error) {
	return t, nil
}

// Validate checks that the staging data is non-empty and that the pixel buffer holds exactly
// Width*Height*bytesPerPixel bytes.
//
// Parameters:
//   - bytesPerPixel: the expected number of bytes per pixel (4 for RGBA, 3 for RGB)
//
// Returns:
//   - error: nil if the data is well formed
func (t *TextureStagingData) Validate(bytesPerPixel int) error {
	if t == nil {
		return fmt.Errorf("staging data is nil")
	}
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("image has zero size (%dx%d)", t.Width, t.Height)
	}
	want := int(t.Width) * int(t.Height) * bytesPerPixel
	if len(t.Data) != want {
		return fmt.Errorf("image %dx%d expects %d bytes, got %d", t.Width, t.Height, want, len(t.Data))
	}
	return nil
}

// ExpandRGB converts tightly packed RGB pixels into RGBA with opaque alpha.
//
// Returns:
//   - *TextureStagingData: a new staging buffer with 4 bytes per pixel
func (t *TextureStagingData) ExpandRGB() *TextureStagingData {
	n := int(t.Width) * int(t.Height)
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		out[i*4+0] = t.Data[i*3+0]
		out[i*4+1] = t.Data[i*3+1]
		out[i*4+2] = t.Data[i*3+2]
		out[i*4+3] = 0xFF
	}
	return &TextureStagingData{Data: out, Width: t.Width, Height: t.Height}
}

// CubemapStagingData holds six RGB faces in +X, -X, +Y, -Y, +Z, -Z order.
type CubemapStagingData struct {
	Images [6]*TextureStagingData
}

// Faces returns the six faces so that a *CubemapStagingData can be used directly as a cubemap source.
func (c *CubemapStagingData) Faces() ([6]*TextureStagingData, error) {
	return c.Images, nil
}
