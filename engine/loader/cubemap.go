package loader

import (
	"fmt"
	"image"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"golang.org/x/sync/errgroup"
)

// cubemapFiles decodes six face images into a cubemap on demand.
type cubemapFiles struct {
	paths [6]string
	size  int
}

var _ renderer.CubemapSource = &cubemapFiles{}

// CubemapFiles returns a cubemap source reading the faces at paths in +X -X +Y -Y +Z -Z order.
// Faces are decoded concurrently and resampled to size×size; a size <= 0 uses the largest
// dimension found among the faces.
//
// Parameters:
//   - paths: the six face image files
//   - size: the edge length of every face in pixels, or 0
//
// Returns:
//   - renderer.CubemapSource: the lazy cubemap source
func CubemapFiles(paths [6]string, size int) renderer.CubemapSource {
	return &cubemapFiles{paths: paths, size: size}
}

func (c *cubemapFiles) Faces() ([6]*common.TextureStagingData, error) {
	var faces [6]*image.RGBA
	var g errgroup.Group
	for i, path := range c.paths {
		g.Go(func() error {
			t, err := decodeFile(path)
			if err != nil {
				return fmt.Errorf("cubemap face %d: %w", i, err)
			}
			faces[i] = &image.RGBA{
				Pix:    t.Data,
				Stride: int(t.Width) * 4,
				Rect:   image.Rect(0, 0, int(t.Width), int(t.Height)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return [6]*common.TextureStagingData{}, err
	}
	return CubemapFromImages(faces, c.size), nil
}

// CubemapFromImages resamples six RGBA faces to a common square size and drops their alpha.
// A size <= 0 uses the largest dimension found among the faces.
func CubemapFromImages(faces [6]*image.RGBA, size int) [6]*common.TextureStagingData {
	if size <= 0 {
		for _, f := range faces {
			size = max(size, f.Rect.Dx(), f.Rect.Dy())
		}
	}

	var out [6]*common.TextureStagingData
	for i, f := range faces {
		out[i] = dropAlpha(resizeRGBA(f, size, size))
	}
	return out
}

// dropAlpha packs img into 3 bytes per pixel.
func dropAlpha(img *image.RGBA) *common.TextureStagingData {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rgb := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			copy(rgb[(y*w+x)*3:], row[x*4:x*4+3])
		}
	}
	return &common.TextureStagingData{Data: rgb, Width: uint32(w), Height: uint32(h)}
}
