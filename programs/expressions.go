package programs

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/field"
)

// Expression is a field expression available to the field program. GLSL
// and Func must compute the same value; GLSL sees the bindings as
// uv, c, z, z0, lastZ, rgb, hsv, i, w, accumColor, q, r and p0.
type Expression struct {
	Name string
	GLSL string
	Func field.FieldFunc
}

var expressions = map[string]Expression{}

func NewExpression(e Expression) error {
	if e.Func == nil || e.GLSL == "" {
		return fmt.Errorf("expression %q is incomplete", e.Name)
	}
	if _, ok := expressions[e.Name]; ok {
		return fmt.Errorf("expression %q already registered", e.Name)
	}
	expressions[e.Name] = e
	return nil
}

func LookupExpression(name string) (Expression, error) {
	e, ok := expressions[name]
	if !ok {
		return Expression{}, fmt.Errorf("%w %q", ErrUnknownExpression, name)
	}
	return e, nil
}

// ExpressionNames returns the registered expression names in order.
func ExpressionNames() []string {
	names := make([]string, 0, len(expressions))
	for name := range expressions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	for _, e := range []Expression{
		{
			Name: "zero",
			GLSL: "0.0",
			Func: func(*field.Bindings) float64 { return 0 },
		},
		{
			Name: "one",
			GLSL: "1.0",
			Func: func(*field.Bindings) float64 { return 1 },
		},
		{
			Name: "hue",
			GLSL: "hsv.x",
			Func: func(b *field.Bindings) float64 { return b.HSV[0] },
		},
		{
			Name: "saturation",
			GLSL: "hsv.y",
			Func: func(b *field.Bindings) float64 { return b.HSV[1] },
		},
		{
			Name: "value",
			GLSL: "hsv.z",
			Func: func(b *field.Bindings) float64 { return b.HSV[2] },
		},
		{
			Name: "weight",
			GLSL: "w",
			Func: func(b *field.Bindings) float64 { return b.W },
		},
		{
			Name: "ripple",
			GLSL: "0.5 + 0.5 * sin(float(i) * 0.5 + length(z))",
			Func: func(b *field.Bindings) float64 {
				return 0.5 + 0.5*math.Sin(float64(b.I)*0.5+b.Z.Len())
			},
		},
		{
			Name: "step",
			GLSL: "clamp(length(z - lastZ), 0.0, 1.0)",
			Func: func(b *field.Bindings) float64 {
				return mgl64.Clamp(b.Z.Sub(b.LastZ).Len(), 0, 1)
			},
		},
		{
			Name: "orbit",
			GLSL: "clamp(dot(z, z0), 0.0, 1.0)",
			Func: func(b *field.Bindings) float64 {
				return mgl64.Clamp(b.Z.Dot(b.Z0), 0, 1)
			},
		},
		{
			Name: "accum",
			GLSL: "length(accumColor) / sqrt(3.0)",
			Func: func(b *field.Bindings) float64 {
				return b.Accum.Len() / math.Sqrt(3)
			},
		},
	} {
		if err := NewExpression(e); err != nil {
			panic(err)
		}
	}
}
