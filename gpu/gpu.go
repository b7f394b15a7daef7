// Package gpu renders programs with OpenGL into an offscreen framebuffer.
package gpu

import (
	"errors"
	"fmt"
	"image"
	"log"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/field"
	"github.com/stewi1014/juliafield/programs"
	"github.com/stewi1014/juliafield/texture"
)

var ErrNoTexture = errors.New("program samples an image but no texture was given")

// Renderer owns a hidden window and its GL context. It is not safe for
// concurrent use; every method must be called from the goroutine that
// called NewRenderer, locked to its OS thread.
type Renderer struct {
	window *glfw.Window
	vao    uint32
	vbo    uint32

	programs map[uint64]*compiledProgram
	order    []uint64
}

type compiledProgram struct {
	id               uint32
	uniformLocations map[string]int32
	image            int32
}

func NewRenderer() (r *Renderer, err error) {
	runtime.LockOSThread()
	defer func() {
		if err != nil {
			runtime.UnlockOSThread()
		}
	}()

	if err = glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(1, 1, "juliafield", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw.CreateWindow: %w", err)
	}
	window.MakeContextCurrent()

	if err = gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl.Init: %w", err)
	}
	log.Println("OpenGL version", gl.GoStr(gl.GetString(gl.VERSION)))

	r = &Renderer{
		window:   window,
		programs: make(map[uint64]*compiledProgram),
	}

	verticies := []float32{
		-1, -1,
		3, -1,
		-1, 3,
	}

	gl.GenVertexArrays(1, &r.vao)
	gl.BindVertexArray(r.vao)

	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verticies)*4, gl.Ptr(verticies), gl.STATIC_DRAW)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 2*4, 0)

	return r, nil
}

func (r *Renderer) Close() {
	for _, p := range r.programs {
		gl.DeleteProgram(p.id)
	}
	gl.DeleteBuffers(1, &r.vbo)
	gl.DeleteVertexArrays(1, &r.vao)
	r.window.Destroy()
	glfw.Terminate()
	runtime.UnlockOSThread()
}

// Render draws program with uniforms into a w×h image. tex is required by
// programs that sample an image.
func (r *Renderer) Render(program *programs.Program, uniforms programs.Uniforms, tex *texture.Texture, w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.New("image dimensions must be positive")
	}
	if program.Variant.Samples() && tex == nil {
		return nil, fmt.Errorf("%v: %w", program.Name, ErrNoTexture)
	}

	p, err := r.loadProgram(program, uniforms)
	if err != nil {
		return nil, err
	}

	var fbo, rbo uint32
	gl.GenFramebuffers(1, &fbo)
	defer gl.DeleteFramebuffers(1, &fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	defer gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	gl.GenRenderbuffers(1, &rbo)
	defer gl.DeleteRenderbuffers(1, &rbo)
	gl.BindRenderbuffer(gl.RENDERBUFFER, rbo)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.RGBA8, int32(w), int32(h))
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.RENDERBUFFER, rbo)

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return nil, fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}

	gl.UseProgram(p.id)
	loadUniforms(p, uniforms)

	if tex != nil {
		id := uploadTexture(tex)
		defer gl.DeleteTextures(1, &id)
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, id)
		gl.Uniform1i(p.image, 0)
	}

	gl.Viewport(0, 0, int32(w), int32(h))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindVertexArray(r.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	flipRows(img)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return nil, fmt.Errorf("gl error 0x%x", e)
	}
	return img, nil
}

// loadProgram returns the compiled variant of program for uniforms,
// compiling and caching it on first use. At most programs.MaxCachedKernels
// variants stay linked; the oldest is deleted first.
func (r *Renderer) loadProgram(program *programs.Program, uniforms programs.Uniforms) (*compiledProgram, error) {
	expression := uniforms.Field
	if program.Variant != field.Field {
		expression = ""
	}
	key := programs.VariantKey(program.Name, expression, int(uniforms.Iterations))
	if p, ok := r.programs[key]; ok {
		return p, nil
	}

	fragmentSource, err := program.Source(uniforms.Field, int(uniforms.Iterations))
	if err != nil {
		return nil, err
	}

	vertexShader, err := compileShader(program.VertexShader+"\x00", gl.VERTEX_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(vertexShader)

	fragmentShader, err := compileShader(fragmentSource+"\x00", gl.FRAGMENT_SHADER)
	if err != nil {
		return nil, err
	}
	defer gl.DeleteShader(fragmentShader)

	id := gl.CreateProgram()
	gl.AttachShader(id, vertexShader)
	gl.AttachShader(id, fragmentShader)
	gl.BindAttribLocation(id, 0, gl.Str("position\x00"))
	gl.BindFragDataLocation(id, 0, gl.Str("fragColor\x00"))
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var l int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &l)

		log := strings.Repeat("\x00", int(l+1))
		gl.GetProgramInfoLog(id, l, nil, gl.Str(log))
		gl.DeleteProgram(id)
		return nil, fmt.Errorf("failed to link %v: %v", program.Name, log)
	}

	p := &compiledProgram{
		id:               id,
		uniformLocations: make(map[string]int32),
		image:            gl.GetUniformLocation(id, gl.Str("image\x00")),
	}
	t := reflect.TypeOf(uniforms)
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("uniform")
		if name == "" {
			continue
		}
		p.uniformLocations[name] = gl.GetUniformLocation(id, gl.Str(name+"\x00"))
	}

	if len(r.order) >= programs.MaxCachedKernels {
		gl.DeleteProgram(r.programs[r.order[0]].id)
		delete(r.programs, r.order[0])
		r.order = r.order[1:]
	}
	r.programs[key] = p
	r.order = append(r.order, key)
	return p, nil
}

// loadUniforms uploads every tagged field of uniforms. Double precision
// values are narrowed to the float uniforms the shaders declare.
func loadUniforms(p *compiledProgram, uniforms programs.Uniforms) {
	v := reflect.ValueOf(uniforms)
	for i := 0; i < v.NumField(); i++ {
		loc, ok := p.uniformLocations[v.Type().Field(i).Tag.Get("uniform")]
		if !ok || loc < 0 {
			continue
		}

		switch f := v.Field(i).Interface().(type) {
		case mgl64.Vec2:
			v32 := mgl32.Vec2{float32(f[0]), float32(f[1])}
			gl.Uniform2fv(loc, 1, &v32[0])
		case float64:
			gl.Uniform1f(loc, float32(f))
		case int32:
			gl.Uniform1i(loc, f)
		default:
			log.Printf("unsupported uniform type %T", f)
		}
	}
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	defer runtime.KeepAlive(source)
	cstring, free := gl.Strs(source)
	defer free()

	shader := gl.CreateShader(shaderType)
	gl.ShaderSource(shader, 1, cstring, nil)
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var l int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &l)

		log := strings.Repeat("\x00", int(l+1))
		gl.GetShaderInfoLog(shader, l, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("shader\n\"\n%v\n\"\nfailed to compile: %v", source, log)
	}

	return shader, nil
}

// uploadTexture copies tex into a new GL texture, bottom row first so that
// texture coordinate (0,0) is the bottom-left corner like texture.Sample.
func uploadTexture(tex *texture.Texture) uint32 {
	src := tex.Image()
	flipped := image.NewNRGBA(src.Rect)
	copy(flipped.Pix, src.Pix)
	flipRows(flipped)

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(
		gl.TEXTURE_2D, 0, gl.RGBA8,
		int32(flipped.Rect.Dx()), int32(flipped.Rect.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(flipped.Pix),
	)
	return id
}

// flipRows reverses the row order of img in place. GL reads and writes
// pixel rows bottom to top.
func flipRows(img *image.NRGBA) {
	h := img.Rect.Dy()
	row := make([]byte, img.Stride)
	for y := 0; y < h/2; y++ {
		top := img.Pix[y*img.Stride : (y+1)*img.Stride]
		bottom := img.Pix[(h-1-y)*img.Stride : (h-y)*img.Stride]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}
