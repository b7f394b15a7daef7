// Package texture loads images and samples them the way a fragment stage
// samples a texture with linear filtering and clamp-to-edge wrapping.
package texture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is an immutable RGB image. It is safe for concurrent use.
type Texture struct {
	img *image.NRGBA
	w   int
	h   int
}

// Load decodes the image at path.
func Load(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%v: empty %v image", path, format)
	}

	return New(img), nil
}

func New(img image.Image) *Texture {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	return &Texture{
		img: nrgba,
		w:   b.Dx(),
		h:   b.Dy(),
	}
}

// Fit returns t scaled down so neither side exceeds maxDim. t is returned
// unchanged if it already fits.
func (t *Texture) Fit(maxDim int) *Texture {
	if maxDim <= 0 || (t.w <= maxDim && t.h <= maxDim) {
		return t
	}

	scale := float64(maxDim) / float64(max(t.w, t.h))
	w := max(1, int(math.Round(float64(t.w)*scale)))
	h := max(1, int(math.Round(float64(t.h)*scale)))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), t.img, t.img.Bounds(), draw.Src, nil)
	return New(dst)
}

func (t *Texture) Bounds() image.Rectangle {
	return t.img.Bounds()
}

// Image returns the underlying pixels. The caller must not modify them.
func (t *Texture) Image() *image.NRGBA {
	return t.img
}

// Sample returns the bilinearly filtered colour at uv, where (0,0) is the
// bottom-left corner and (1,1) the top-right. Coordinates outside [0,1]
// are clamped to the edge texels.
func (t *Texture) Sample(uv mgl64.Vec2) mgl64.Vec3 {
	// texel centres are at (i+0.5)/w
	x := uv[0]*float64(t.w) - 0.5
	y := (1-uv[1])*float64(t.h) - 0.5
	if math.IsNaN(x) {
		x = 0
	}
	if math.IsNaN(y) {
		y = 0
	}
	x = mgl64.Clamp(x, -0.5, float64(t.w)-0.5)
	y = mgl64.Clamp(y, -0.5, float64(t.h)-0.5)

	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0

	ix0, ix1 := t.clampX(x0), t.clampX(x0+1)
	iy0, iy1 := t.clampY(y0), t.clampY(y0+1)

	top := t.texel(ix0, iy0).Mul(1 - fx).Add(t.texel(ix1, iy0).Mul(fx))
	bottom := t.texel(ix0, iy1).Mul(1 - fx).Add(t.texel(ix1, iy1).Mul(fx))
	return top.Mul(1 - fy).Add(bottom.Mul(fy))
}

func (t *Texture) clampX(x float64) int {
	return int(mgl64.Clamp(x, 0, float64(t.w-1)))
}

func (t *Texture) clampY(y float64) int {
	return int(mgl64.Clamp(y, 0, float64(t.h-1)))
}

func (t *Texture) texel(x, y int) mgl64.Vec3 {
	i := t.img.PixOffset(x, y)
	p := t.img.Pix[i : i+3 : i+3]
	return mgl64.Vec3{
		float64(p[0]) / 255,
		float64(p[1]) / 255,
		float64(p[2]) / 255,
	}
}
