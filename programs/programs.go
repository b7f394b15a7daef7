package programs

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/field"
)

var (
	ErrUnknownProgram    = errors.New("unknown program")
	ErrUnknownExpression = errors.New("unknown field expression")
)

//go:embed shaders/default.vert
var defaultVertexShader string

func NumPrograms() int {
	return len(programs)
}

func GetProgram(i int) *Program {
	return programs[i]
}

// Lookup returns the program registered under name.
func Lookup(name string) (*Program, error) {
	for _, p := range programs {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownProgram, name)
}

func NewProgram(p *Program) error {
	if _, err := Lookup(p.Name); err == nil {
		return fmt.Errorf("program %q already registered", p.Name)
	}
	programs = append(programs, p)
	return nil
}

var programs []*Program

// Program is one kernel variant, renderable on the CPU through Kernel and
// on the GPU through Source.
type Program struct {
	Name           string
	Variant        field.Variant
	VertexShader   string
	FragmentShader string

	parseOnce sync.Once
	fragment  *template.Template
	parseErr  error
}

type shaderData struct {
	Iterations int
	Escape     string
	Field      string
}

// Source returns the fragment shader specialised for the expression and
// iteration count. The expression is ignored by programs that do not use one.
func (p *Program) Source(expression string, iterations int) (string, error) {
	p.parseOnce.Do(func() {
		p.fragment, p.parseErr = template.New(p.Name).Parse(p.FragmentShader)
	})
	if p.parseErr != nil {
		return "", fmt.Errorf("parse %v shader: %w", p.Name, p.parseErr)
	}
	if iterations <= 0 {
		return "", fmt.Errorf("%w: %d", field.ErrBadIteration, iterations)
	}

	data := shaderData{
		Iterations: iterations,
		Escape:     fmt.Sprintf("%.1f", p.Variant.DefaultEscape()),
		Field:      "0.0",
	}
	if p.Variant == field.Field {
		e, err := LookupExpression(expression)
		if err != nil {
			return "", err
		}
		data.Field = e.GLSL
	}

	var b strings.Builder
	if err := p.fragment.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute %v shader: %w", p.Name, err)
	}
	return b.String(), nil
}

// Kernel returns the compiled CPU kernel for the expression and iteration
// count, building it on first use.
func (p *Program) Kernel(expression string, iterations int) (*field.Kernel, error) {
	if p.Variant != field.Field {
		expression = ""
	}
	key := VariantKey(p.Name, expression, iterations)

	return kernels.get(key, func() (*field.Kernel, error) {
		var fn field.FieldFunc
		if p.Variant == field.Field {
			e, err := LookupExpression(expression)
			if err != nil {
				return nil, err
			}
			fn = e.Func
		}

		return field.NewKernel(p.Variant, field.IterationPolicy{
			MaxIterations:       iterations,
			EscapeRadiusSquared: p.Variant.DefaultEscape(),
		}, fn)
	})
}

// GetImage binds uniforms and source to the program's kernel. source may be
// nil for programs that do not sample an image.
func (p *Program) GetImage(uniforms Uniforms, source field.Sampler) (Image, error) {
	kernel, err := p.Kernel(uniforms.Field, int(uniforms.Iterations))
	if err != nil {
		return nil, err
	}

	frame := uniforms.Frame(source)
	if err := kernel.Validate(&frame); err != nil {
		return nil, fmt.Errorf("%v: %w", p.Name, err)
	}

	return &programImage{
		kernel: kernel,
		frame:  frame,
	}, nil
}

// Image is a colour field over uv in [0,1]², (0,0) being bottom-left.
type Image interface {
	GetPixel(uv mgl64.Vec2) mgl64.Vec4
}

type programImage struct {
	kernel *field.Kernel
	frame  field.Frame
}

func (i *programImage) GetPixel(uv mgl64.Vec2) mgl64.Vec4 {
	return i.kernel.Eval(&i.frame, uv)
}
