package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

const DefaultTileSize = 64

// Image is a colour field over uv in [0,1]², (0,0) being bottom-left.
type Image interface {
	GetPixel(uv mgl64.Vec2) mgl64.Vec4
}

type Options struct {
	// Workers bounds the number of tiles rendered at once. Defaults to GOMAXPROCS.
	Workers int
	// TileSize is the side of the square tiles the output is split into.
	TileSize int
	// Antialias, if positive, supersamples each pixel 9 times at this
	// distance in pixels.
	Antialias float64
	// Progress is called after each tile with the number of finished and
	// total pixels. It may be called concurrently.
	Progress func(done, total int)
	// Tile is called with each finished tile. It may be called
	// concurrently. An error aborts the render.
	Tile func(dst *image.NRGBA, tile image.Rectangle) error
}

// Render evaluates img for every pixel of a w×h image.
func Render(ctx context.Context, img Image, w, h int, opts Options) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.New("image dimensions must be positive")
	}
	if opts.TileSize <= 0 {
		opts.TileSize = DefaultTileSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Antialias > 0 {
		img = AntiAlias9x(img, w, h, opts.Antialias)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	total := w * h
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, tile := range SplitRect(dst.Bounds(), opts.TileSize, opts.TileSize) {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := renderTile(gctx, img, dst, tile); err != nil {
				return err
			}
			if opts.Tile != nil {
				if err := opts.Tile(dst, tile); err != nil {
					return err
				}
			}
			n := done.Add(int64(tile.Dx() * tile.Dy()))
			if opts.Progress != nil {
				opts.Progress(int(n), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	return dst, nil
}

func renderTile(ctx context.Context, img Image, dst *image.NRGBA, tile image.Rectangle) error {
	w, h := float64(dst.Rect.Dx()), float64(dst.Rect.Dy())

	for y := tile.Min.Y; y < tile.Max.Y; y++ {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		v := 1 - (float64(y)+0.5)/h
		for x := tile.Min.X; x < tile.Max.X; x++ {
			uv := mgl64.Vec2{(float64(x) + 0.5) / w, v}
			dst.SetNRGBA(x, y, ToNRGBA(img.GetPixel(uv)))
		}
	}
	return nil
}

// ToNRGBA quantises a colour, clamping each channel to [0,1]. NaN becomes 0.
func ToNRGBA(c mgl64.Vec4) color.NRGBA {
	q := func(f float64) uint8 {
		if math.IsNaN(f) {
			return 0
		}
		return uint8(math.Round(mgl64.Clamp(f, 0, 1) * 255))
	}
	return color.NRGBA{
		R: q(c[0]),
		G: q(c[1]),
		B: q(c[2]),
		A: q(c[3]),
	}
}

// SplitRect splits r into tiles of size tileW × tileH.
// Tiles at the right and bottom edges are smaller if r is not divisible.
func SplitRect(r image.Rectangle, tileW, tileH int) []image.Rectangle {
	if tileW <= 0 || tileH <= 0 {
		panic("tile dimensions must be positive")
	}

	var tiles []image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y += tileH {
		for x := r.Min.X; x < r.Max.X; x += tileW {
			tiles = append(tiles, image.Rect(
				x,
				y,
				min(x+tileW, r.Max.X),
				min(y+tileH, r.Max.Y),
			))
		}
	}
	return tiles
}
