package gpu

import (
	"context"
	"image"
	"image/color"
	"os"
	"runtime"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/programs"
	"github.com/stewi1014/juliafield/render"
	"github.com/stewi1014/juliafield/texture"
)

// GLFW must be driven from the main thread. Tests run on their own
// goroutines, so GL work is handed to TestMain through mainfunc.
var mainfunc = make(chan func())

func init() {
	runtime.LockOSThread()
}

func TestMain(m *testing.M) {
	done := make(chan int)
	go func() { done <- m.Run() }()

	for {
		select {
		case f := <-mainfunc:
			f()
		case code := <-done:
			os.Exit(code)
		}
	}
}

// onMain runs f on the main thread and waits for it. f must not call
// t.Fatal or t.Skip.
func onMain(f func()) {
	done := make(chan struct{})
	mainfunc <- func() {
		defer close(done)
		f()
	}
	<-done
}

func TestFlipRows(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	for y := 0; y < 3; y++ {
		img.SetNRGBA(0, y, color.NRGBA{uint8(y), 0, 0, 255})
	}

	flipRows(img)
	for y := 0; y < 3; y++ {
		if got := img.NRGBAAt(0, y).R; got != uint8(2-y) {
			t.Errorf("row %d holds %d", y, got)
		}
	}
}

// newRenderer skips the test when no display or GL 4.1 driver is available.
func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	var (
		r   *Renderer
		err error
	)
	onMain(func() { r, err = NewRenderer() })
	if err != nil {
		t.Skipf("no OpenGL context: %v", err)
	}
	t.Cleanup(func() { onMain(r.Close) })
	return r
}

func renderOnMain(r *Renderer, p *programs.Program, u programs.Uniforms, tex *texture.Texture, w, h int) (img *image.NRGBA, err error) {
	onMain(func() { img, err = r.Render(p, u, tex, w, h) })
	return img, err
}

func loadOnMain(r *Renderer, p *programs.Program, u programs.Uniforms) (cp *compiledProgram, err error) {
	onMain(func() { cp, err = r.loadProgram(p, u) })
	return cp, err
}

func TestRenderMatchesCPU(t *testing.T) {
	r := newRenderer(t)

	gradient := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			gradient.SetNRGBA(x, y, color.NRGBA{uint8(x * 32), uint8(y * 32), 128, 255})
		}
	}
	tex := texture.New(gradient)

	u := programs.DefaultUniforms()
	u.Iterations = 32

	for i := 0; i < programs.NumPrograms(); i++ {
		p := programs.GetProgram(i)
		t.Run(p.Name, func(t *testing.T) {
			got, err := renderOnMain(r, p, u, tex, 40, 32)
			if err != nil {
				t.Fatal(err)
			}

			img, err := p.GetImage(u, tex)
			if err != nil {
				t.Fatal(err)
			}
			want, err := render.Render(context.Background(), img, 40, 32, render.Options{})
			if err != nil {
				t.Fatal(err)
			}

			// Single precision on the GPU moves escape boundaries, so only
			// most pixels are expected to agree closely.
			agree := 0
			for i := 0; i < len(got.Pix); i += 4 {
				if near(got.Pix[i:i+4], want.Pix[i:i+4], 8) {
					agree++
				}
			}
			if total := len(got.Pix) / 4; agree < total*9/10 {
				t.Errorf("%d of %d pixels agree", agree, total)
			}
		})
	}
}

func TestRenderInteriorBlack(t *testing.T) {
	r := newRenderer(t)
	p, err := programs.Lookup("julia")
	if err != nil {
		t.Fatal(err)
	}

	u := programs.DefaultUniforms()
	u.C = mgl64.Vec2{}
	img, err := renderOnMain(r, p, u, nil, 5, 4)
	if err != nil {
		t.Fatal(err)
	}
	if c := img.NRGBAAt(2, 1); c != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("interior pixel %v", c)
	}
}

func TestRenderNeedsTexture(t *testing.T) {
	r := newRenderer(t)
	p, err := programs.Lookup("julia-image")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := renderOnMain(r, p, programs.DefaultUniforms(), nil, 4, 4); err == nil {
		t.Error("rendered an image program without a texture")
	}
}

func TestProgramCache(t *testing.T) {
	r := newRenderer(t)
	p, err := programs.Lookup("julia")
	if err != nil {
		t.Fatal(err)
	}

	u := programs.DefaultUniforms()
	a, err := loadOnMain(r, p, u)
	if err != nil {
		t.Fatal(err)
	}
	b, err := loadOnMain(r, p, u)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same configuration compiled twice")
	}

	u.Iterations++
	c, err := loadOnMain(r, p, u)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("iteration count did not produce a new program")
	}
}

func TestProgramCacheBounded(t *testing.T) {
	r := newRenderer(t)
	p, err := programs.Lookup("julia")
	if err != nil {
		t.Fatal(err)
	}

	u := programs.DefaultUniforms()
	for i := 1; i <= programs.MaxCachedKernels+8; i++ {
		u.Iterations = int32(i)
		if _, err := loadOnMain(r, p, u); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(r.programs); n != programs.MaxCachedKernels || len(r.order) != n {
		t.Errorf("%d programs cached, %d ordered, limit %d", n, len(r.order), programs.MaxCachedKernels)
	}
}

func near(a, b []byte, tolerance int) bool {
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < -tolerance || d > tolerance {
			return false
		}
	}
	return true
}
