package texture

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/image/bmp"
)

// quadrants returns a 2x2 image: red top-left, green top-right,
// blue bottom-left, white bottom-right.
func quadrants() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(0, 1, color.RGBA{0, 0, 255, 255})
	img.Set(1, 1, color.RGBA{255, 255, 255, 255})
	return img
}

func TestSampleTexelCentres(t *testing.T) {
	tex := New(quadrants())

	tests := []struct {
		uv   mgl64.Vec2
		want mgl64.Vec3
	}{
		{mgl64.Vec2{0.25, 0.75}, mgl64.Vec3{1, 0, 0}},
		{mgl64.Vec2{0.75, 0.75}, mgl64.Vec3{0, 1, 0}},
		{mgl64.Vec2{0.25, 0.25}, mgl64.Vec3{0, 0, 1}},
		{mgl64.Vec2{0.75, 0.25}, mgl64.Vec3{1, 1, 1}},
		{mgl64.Vec2{0.5, 0.75}, mgl64.Vec3{0.5, 0.5, 0}},
	}

	for _, tt := range tests {
		if got := tex.Sample(tt.uv); !near3(got, tt.want, 1e-9) {
			t.Errorf("Sample(%v) = %v, want %v", tt.uv, got, tt.want)
		}
	}
}

func TestSampleClampsToEdge(t *testing.T) {
	tex := New(quadrants())

	tests := []struct {
		uv   mgl64.Vec2
		want mgl64.Vec3
	}{
		{mgl64.Vec2{-3, 10}, mgl64.Vec3{1, 0, 0}},
		{mgl64.Vec2{5, 5}, mgl64.Vec3{0, 1, 0}},
		{mgl64.Vec2{-1, -1}, mgl64.Vec3{0, 0, 1}},
		{mgl64.Vec2{math.Inf(1), math.Inf(-1)}, mgl64.Vec3{1, 1, 1}},
	}

	for _, tt := range tests {
		if got := tex.Sample(tt.uv); !near3(got, tt.want, 1e-9) {
			t.Errorf("Sample(%v) = %v, want %v", tt.uv, got, tt.want)
		}
	}

	got := tex.Sample(mgl64.Vec2{math.NaN(), 0.75})
	for i := range got {
		if math.IsNaN(got[i]) {
			t.Fatalf("NaN coordinate produced %v", got)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, encode func(*os.File) error) string {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if err := encode(f); err != nil {
			t.Fatal(err)
		}
		return path
	}

	paths := []string{
		write("q.png", func(f *os.File) error { return png.Encode(f, quadrants()) }),
		write("q.bmp", func(f *os.File) error { return bmp.Encode(f, quadrants()) }),
	}

	for _, path := range paths {
		tex, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%v): %v", path, err)
		}
		if tex.Bounds() != image.Rect(0, 0, 2, 2) {
			t.Errorf("%v: bounds %v", path, tex.Bounds())
		}
		if got := tex.Sample(mgl64.Vec2{0.25, 0.75}); !near3(got, mgl64.Vec3{1, 0, 0}, 1e-9) {
			t.Errorf("%v: top-left %v", path, got)
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("loaded a missing file")
	}
	garbage := write("garbage.png", func(f *os.File) error {
		_, err := f.WriteString("not an image")
		return err
	})
	if _, err := Load(garbage); err == nil {
		t.Error("decoded garbage")
	}
}

func TestFit(t *testing.T) {
	tex := New(image.NewNRGBA(image.Rect(0, 0, 400, 100)))

	if got := tex.Fit(0); got != tex {
		t.Error("Fit(0) changed the texture")
	}
	if got := tex.Fit(800); got != tex {
		t.Error("Fit larger than the texture changed it")
	}
	if got := tex.Fit(200).Bounds(); got != image.Rect(0, 0, 200, 50) {
		t.Errorf("Fit(200) bounds %v", got)
	}
}

func TestNewOffsetImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 12, 12))
	src.Set(10, 10, color.RGBA{255, 0, 0, 255})

	tex := New(src)
	if tex.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds %v", tex.Bounds())
	}
	if got := tex.Sample(mgl64.Vec2{0.25, 0.75}); !near3(got, mgl64.Vec3{1, 0, 0}, 1e-9) {
		t.Errorf("top-left %v", got)
	}
}

// near3 reports whether a and b differ by at most tol in every component.
func near3(a, b mgl64.Vec3, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
