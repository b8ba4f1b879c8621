package loader

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// imageFormat pairs a file signature with its decoder.
type imageFormat struct {
	name   string
	match  func(head []byte) bool
	decode func(io.Reader) (image.Image, error)
}

// imageFormats is checked in order. TGA has no signature and is the fallback.
var imageFormats = []imageFormat{
	{"png", func(h []byte) bool { return bytes.HasPrefix(h, []byte("\x89PNG\r\n\x1a\n")) }, png.Decode},
	{"jpeg", func(h []byte) bool { return bytes.HasPrefix(h, []byte{0xFF, 0xD8}) }, jpeg.Decode},
	{"bmp", func(h []byte) bool { return bytes.HasPrefix(h, []byte("BM")) }, bmp.Decode},
	{"tiff", func(h []byte) bool {
		return bytes.HasPrefix(h, []byte("II*\x00")) || bytes.HasPrefix(h, []byte("MM\x00*"))
	}, tiff.Decode},
	{"webp", func(h []byte) bool {
		return len(h) >= 12 && string(h[0:4]) == "RIFF" && string(h[8:12]) == "WEBP"
	}, webp.Decode},
}

// DecodeImage decodes a PNG, JPEG, BMP, TIFF, WebP or TGA image into tightly packed RGBA pixels.
// The format is chosen by signature; data matching none is decoded as TGA.
//
// Parameters:
//   - r: the encoded image
//
// Returns:
//   - *common.TextureStagingData: the decoded pixels
//   - error: error if the data is not a supported image
func DecodeImage(r io.Reader) (*common.TextureStagingData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	name, decode := "tga", tga.Decode
	for _, f := range imageFormats {
		if f.match(data) {
			name, decode = f.name, f.decode
			break
		}
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", renderer.ErrInvalidSource, name, err)
	}
	rgba := toRGBA(img)
	if rgba.Rect.Dx() == 0 || rgba.Rect.Dy() == 0 {
		return nil, fmt.Errorf("%w: %s image is empty", renderer.ErrInvalidSource, name)
	}
	return stagingFromRGBA(rgba), nil
}

// decodeFile decodes the image at path.
func decodeFile(path string) (*common.TextureStagingData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ImageFile returns a pixel source that decodes the image at path when the renderer asks for it.
func ImageFile(path string) renderer.PixelSource {
	return renderer.PixelSourceFunc(func() (*common.TextureStagingData, error) {
		return decodeFile(path)
	})
}

// ImageBytes returns a pixel source that decodes an in-memory encoded image.
func ImageBytes(data []byte) renderer.PixelSource {
	return renderer.PixelSourceFunc(func() (*common.TextureStagingData, error) {
		return DecodeImage(bytes.NewReader(data))
	})
}

// toRGBA returns img as an *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(rgba, rgba.Rect, img, b.Min, xdraw.Src)
	return rgba
}

// resizeRGBA scales img to width×height with Catmull-Rom filtering. img is returned unchanged
// when it already has that size.
func resizeRGBA(img *image.RGBA, width, height int) *image.RGBA {
	if img.Rect.Dx() == width && img.Rect.Dy() == height {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Rect, img, img.Rect, xdraw.Src, nil)
	return out
}

func stagingFromRGBA(img *image.RGBA) *common.TextureStagingData {
	return &common.TextureStagingData{
		Data:   img.Pix,
		Width:  uint32(img.Rect.Dx()),
		Height: uint32(img.Rect.Dy()),
	}
}

// solidImage returns a width×height image filled with c.
func solidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}
