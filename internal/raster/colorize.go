package raster

import (
	"image"
	"image/color"
)

// Colorize maps every gray sample of img through ramp. A sample's value is
// sample/scale; scale 0 means the full range of the sample depth (255 or
// 65535). Samples equal to noData (in raw sample units) get ramp.NoData.
func Colorize(img image.Image, ramp *Ramp, scale float64, noData *float64) *image.NRGBA {
	if scale <= 0 {
		scale = fullScale(img)
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			raw := sample(img, x, y)
			c := ramp.NoData
			if noData == nil || raw != *noData {
				c = ramp.At(raw / scale)
			}
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

func fullScale(img image.Image) float64 {
	switch img.(type) {
	case *image.Gray:
		return 0xff
	default:
		return 0xffff
	}
}

func sample(img image.Image, x, y int) float64 {
	switch m := img.(type) {
	case *image.Gray:
		return float64(m.GrayAt(x, y).Y)
	case *image.Gray16:
		return float64(m.Gray16At(x, y).Y)
	default:
		return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
	}
}
