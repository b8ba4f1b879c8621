package renderer

import (
	"image"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"golang.org/x/image/draw"
)

// buildMipChain returns level 0 followed by successively halved levels down to 1×1.
// Low quality uploads level 0 only.
func buildMipChain(base *common.TextureStagingData, q Quality) []*common.TextureStagingData {
	levels := []*common.TextureStagingData{base}
	if q == QualityLow {
		return levels
	}

	src := &image.RGBA{
		Pix:    base.Data,
		Stride: int(base.Width) * 4,
		Rect:   image.Rect(0, 0, int(base.Width), int(base.Height)),
	}
	w, h := int(base.Width), int(base.Height)
	for w > 1 || h > 1 {
		w, h = max(w/2, 1), max(h/2, 1)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		levels = append(levels, &common.TextureStagingData{Data: dst.Pix, Width: uint32(w), Height: uint32(h)})
		src = dst
	}
	return levels
}
