package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/programs"
)

type uvImage struct{}

func (uvImage) GetPixel(uv mgl64.Vec2) mgl64.Vec4 {
	return mgl64.Vec4{uv[0], uv[1], 0, 1}
}

type constImage mgl64.Vec4

func (c constImage) GetPixel(mgl64.Vec2) mgl64.Vec4 { return mgl64.Vec4(c) }

func TestSplitRect(t *testing.T) {
	r := image.Rect(0, 0, 130, 70)
	tiles := SplitRect(r, 64, 64)
	if len(tiles) != 6 {
		t.Fatalf("%d tiles, want 6", len(tiles))
	}

	area := 0
	for _, tile := range tiles {
		if !tile.In(r) {
			t.Errorf("tile %v outside %v", tile, r)
		}
		area += tile.Dx() * tile.Dy()
	}
	if area != r.Dx()*r.Dy() {
		t.Errorf("tiles cover %d pixels, want %d", area, r.Dx()*r.Dy())
	}
	if last := tiles[len(tiles)-1]; last != image.Rect(128, 64, 130, 70) {
		t.Errorf("last tile %v", last)
	}
}

func TestRenderPixelCentres(t *testing.T) {
	img, err := Render(context.Background(), uvImage{}, 4, 2, Options{TileSize: 3, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	// uv y runs bottom to top, image rows top to bottom.
	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, ToNRGBA(mgl64.Vec4{0.125, 0.75, 0, 1})},
		{3, 0, ToNRGBA(mgl64.Vec4{0.875, 0.75, 0, 1})},
		{0, 1, ToNRGBA(mgl64.Vec4{0.125, 0.25, 0, 1})},
	}
	for _, tt := range tests {
		if got := img.NRGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderProgressAndTiles(t *testing.T) {
	var (
		mu    sync.Mutex
		tiles []image.Rectangle
		last  atomic.Int64
	)

	_, err := Render(context.Background(), constImage{1, 0, 0, 1}, 100, 30, Options{
		TileSize: 32,
		Progress: func(done, total int) {
			if total != 3000 {
				t.Errorf("total %d", total)
			}
			for {
				prev := last.Load()
				if int64(done) <= prev || last.CompareAndSwap(prev, int64(done)) {
					break
				}
			}
		},
		Tile: func(dst *image.NRGBA, tile image.Rectangle) error {
			mu.Lock()
			tiles = append(tiles, tile)
			mu.Unlock()
			if got := dst.NRGBAAt(tile.Min.X, tile.Min.Y); got != (color.NRGBA{255, 0, 0, 255}) {
				t.Errorf("tile %v not rendered before callback: %v", tile, got)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(tiles) != 4 {
		t.Errorf("%d tiles reported, want 4", len(tiles))
	}
	if last.Load() != 3000 {
		t.Errorf("progress reached %d", last.Load())
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	stop := errors.New("stop")
	cancel(stop)

	_, err := Render(ctx, uvImage{}, 64, 64, Options{})
	if !errors.Is(err, stop) {
		t.Errorf("got %v, want cancellation cause", err)
	}
}

func TestRenderBadSize(t *testing.T) {
	if _, err := Render(context.Background(), uvImage{}, 0, 10, Options{}); err == nil {
		t.Error("rendered a zero width image")
	}
}

func TestToNRGBA(t *testing.T) {
	tests := []struct {
		in   mgl64.Vec4
		want color.NRGBA
	}{
		{mgl64.Vec4{0, 0, 0, 1}, color.NRGBA{0, 0, 0, 255}},
		{mgl64.Vec4{2, -1, 0.5, 1}, color.NRGBA{255, 0, 128, 255}},
		{mgl64.Vec4{math.NaN(), math.Inf(1), math.Inf(-1), 1}, color.NRGBA{0, 255, 0, 255}},
	}
	for _, tt := range tests {
		if got := ToNRGBA(tt.in); got != tt.want {
			t.Errorf("ToNRGBA(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAntiAliasAverages(t *testing.T) {
	aa := AntiAlias9x(uvImage{}, 10, 10, 1)
	got := aa.GetPixel(mgl64.Vec2{0.5, 0.5})
	if !near4(got, mgl64.Vec4{0.5, 0.5, 0, 1}, 1e-12) {
		t.Errorf("got %v", got)
	}

	if got := AntiAlias9x(constImage{0.2, 0.4, 0.6, 1}, 10, 10, 2).GetPixel(mgl64.Vec2{0.1, 0.9}); !near4(got, mgl64.Vec4{0.2, 0.4, 0.6, 1}, 1e-12) {
		t.Errorf("constant image changed: %v", got)
	}
}

func TestRenderJuliaInteriorIsBlack(t *testing.T) {
	p, err := programs.Lookup("julia")
	if err != nil {
		t.Fatal(err)
	}
	u := programs.DefaultUniforms()
	u.C = mgl64.Vec2{}

	img, err := p.GetImage(u, nil)
	if err != nil {
		t.Fatal(err)
	}

	// One pixel per unit of the complex plane.
	out, err := Render(context.Background(), img, 5, 4, Options{})
	if err != nil {
		t.Fatal(err)
	}

	frame := u.Frame(nil)
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			uv := mgl64.Vec2{(float64(x) + 0.5) / 5, 1 - (float64(y)+0.5)/4}
			z0 := frame.View.Map(uv)
			got := out.NRGBAAt(x, y)
			if z0.Len() < 1 && got != (color.NRGBA{0, 0, 0, 255}) {
				t.Errorf("interior pixel %v (z0 %v) = %v", image.Pt(x, y), z0, got)
			}
			if z0.Len() > 2 && got == (color.NRGBA{0, 0, 0, 255}) {
				t.Errorf("exterior pixel %v (z0 %v) is black", image.Pt(x, y), z0)
			}
		}
	}
}

func TestRenderTileError(t *testing.T) {
	fail := errors.New("client gone")
	var calls atomic.Int32

	_, err := Render(context.Background(), uvImage{}, 256, 256, Options{
		Workers:  1,
		TileSize: 16,
		Tile: func(*image.NRGBA, image.Rectangle) error {
			calls.Add(1)
			return fail
		},
	})
	if !errors.Is(err, fail) {
		t.Errorf("got %v, want %v", err, fail)
	}
	if n := calls.Load(); n >= 256 {
		t.Errorf("render continued after the error: %d tiles", n)
	}
}

// near4 reports whether a and b differ by at most tol in every component.
func near4(a, b mgl64.Vec4, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
