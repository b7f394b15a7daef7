package render

import (
	"log"

	"github.com/go-gl/mathgl/mgl64"
)

// AntiAlias9x samples 9 positions for each sampled position,
// returning the average colour.
//
// antialias is the number of pixels apart the sampled locations are, for
// an image of w×h pixels.
func AntiAlias9x(img Image, w, h int, antialias float64) Image {
	if antialias == 0 {
		log.Println("image uselessly antialiased with distance of 0")
	}

	return &antialias9xImage{
		Image:  img,
		offset: mgl64.Vec2{antialias / float64(w), antialias / float64(h)},
	}
}

type antialias9xImage struct {
	Image
	offset mgl64.Vec2
}

func (i *antialias9xImage) GetPixel(uv mgl64.Vec2) mgl64.Vec4 {
	var sum mgl64.Vec4
	for _, dy := range [3]float64{-1, 0, 1} {
		for _, dx := range [3]float64{-1, 0, 1} {
			sum = sum.Add(i.Image.GetPixel(mgl64.Vec2{
				uv[0] + dx*i.offset[0],
				uv[1] + dy*i.offset[1],
			}))
		}
	}
	return sum.Mul(1.0 / 9)
}
