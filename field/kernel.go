// Package field evaluates Julia set escape-time fields one pixel at a time.
//
// A Kernel is built once per configuration (variant, iteration budget and
// field expression) and can then be evaluated concurrently for any number
// of pixels and frames. Nothing in this package allocates per pixel or
// returns errors per pixel; misconfiguration is reported by NewKernel and
// Kernel.Validate.
package field

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultMaxIterations = 64

	// ImageEscapeRadiusSquared is the escape threshold of the image sampling variants.
	ImageEscapeRadiusSquared = 10.0
	// ColorEscapeRadiusSquared is the |z| > 4 test of the colour variant.
	ColorEscapeRadiusSquared = 16.0
)

var (
	ErrNoSource     = errors.New("variant samples an image but no source was given")
	ErrNoField      = errors.New("field variant requires a field function")
	ErrBadIteration = errors.New("iteration budget must be positive")
	ErrBadEscape    = errors.New("escape radius must be positive")
)

// Variant selects the colouring rule of a kernel.
type Variant int

const (
	// Color colours by smooth iteration count only.
	Color Variant = iota
	// Image accumulates colour sampled from a source image along the orbit.
	Image
	// Field is Image with the exponent chosen per iteration by a FieldFunc.
	Field
)

func (v Variant) String() string {
	switch v {
	case Color:
		return "color"
	case Image:
		return "image"
	case Field:
		return "field"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Samples reports whether the variant reads a source image.
func (v Variant) Samples() bool {
	return v == Image || v == Field
}

// DefaultEscape returns the escape threshold used by the variant.
func (v Variant) DefaultEscape() float64 {
	if v == Color {
		return ColorEscapeRadiusSquared
	}
	return ImageEscapeRadiusSquared
}

type JuliaParams struct {
	C mgl64.Vec2
	P float64

	// Q and R bound the exponent of the field variant.
	Q, R float64
}

type IterationPolicy struct {
	MaxIterations       int
	EscapeRadiusSquared float64
}

// Sampler is a read-only colour source addressed by normalised coordinates.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(uv mgl64.Vec2) mgl64.Vec3
}

// Bindings is the state visible to a field expression.
type Bindings struct {
	UV, C, Z, Z0, LastZ mgl64.Vec2
	RGB, HSV            mgl64.Vec3
	I                   int
	W                   float64
	Accum               mgl64.Vec3
	Q, R, P0            float64
}

// FieldFunc returns the interpolation factor t between Q and R for the
// current iteration. It must not retain or modify b.
type FieldFunc func(b *Bindings) float64

// Frame holds the parameters that change between renders of one kernel.
type Frame struct {
	View   ViewPort
	Julia  JuliaParams
	Source Sampler
}

// Orbit is the result of iterating one pixel.
type Orbit struct {
	Z0, Z     mgl64.Vec2
	Escaped   bool
	Iteration int
	Accum     mgl64.Vec3
}

type Kernel struct {
	variant Variant
	policy  IterationPolicy
	field   FieldFunc
}

// NewKernel compiles a kernel variant. fn is required for Field and ignored
// otherwise.
func NewKernel(variant Variant, policy IterationPolicy, fn FieldFunc) (*Kernel, error) {
	if policy.MaxIterations <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadIteration, policy.MaxIterations)
	}
	if policy.EscapeRadiusSquared <= 0 || math.IsNaN(policy.EscapeRadiusSquared) {
		return nil, fmt.Errorf("%w: %v", ErrBadEscape, policy.EscapeRadiusSquared)
	}

	switch variant {
	case Color, Image:
		fn = nil
	case Field:
		if fn == nil {
			return nil, ErrNoField
		}
	default:
		return nil, fmt.Errorf("unknown variant %v", variant)
	}

	return &Kernel{
		variant: variant,
		policy:  policy,
		field:   fn,
	}, nil
}

func (k *Kernel) Variant() Variant        { return k.variant }
func (k *Kernel) Policy() IterationPolicy { return k.policy }

// Validate checks that f can be rendered by k.
func (k *Kernel) Validate(f *Frame) error {
	if k.variant.Samples() && f.Source == nil {
		return fmt.Errorf("%v: %w", k.variant, ErrNoSource)
	}
	return nil
}

// Iterate runs the escape-time loop for the pixel at uv.
func (k *Kernel) Iterate(f *Frame, uv mgl64.Vec2) Orbit {
	z0 := f.View.Map(uv)
	z := z0
	c := f.Julia.C
	p := f.Julia.P
	sampling := k.variant.Samples() && f.Source != nil

	var (
		b     Bindings
		accum mgl64.Vec3
	)
	if k.field != nil {
		b = Bindings{UV: uv, C: c, Z0: z0, LastZ: z0, Q: f.Julia.Q, R: f.Julia.R, P0: p}
	}

	for i := 0; i < k.policy.MaxIterations; i++ {
		var (
			rgb mgl64.Vec3
			w   float64
		)
		if sampling {
			rgb = f.Source.Sample(mgl64.Vec2{z[0]*0.2 + 0.5, z[1]*0.25 + 0.5})
			w = mgl64.Clamp(1/math.Max(1, 0.35*z.Dot(z)), 0, 1)
			accum = accum.Add(rgb.Sub(accum).Mul(0.01 * w))
		}

		pEff := p
		if k.field != nil {
			b.Z = z
			b.RGB = rgb
			b.HSV = RGBToHSV(rgb)
			b.I = i
			b.W = w
			b.Accum = accum
			t := k.field(&b)
			pEff = f.Julia.Q + (f.Julia.R-f.Julia.Q)*t
			b.LastZ = z
		}

		if pEff == 2 {
			z = Square(z, c)
		} else {
			z = Power(z, pEff, c)
		}

		if z.Dot(z) > k.policy.EscapeRadiusSquared {
			return Orbit{Z0: z0, Z: z, Escaped: true, Iteration: i, Accum: accum}
		}
	}

	return Orbit{Z0: z0, Z: z, Iteration: k.policy.MaxIterations, Accum: accum}
}

var black = mgl64.Vec4{0, 0, 0, 1}

// Eval returns the opaque colour of the pixel at uv.
func (k *Kernel) Eval(f *Frame, uv mgl64.Vec2) mgl64.Vec4 {
	o := k.Iterate(f, uv)
	if !o.Escaped {
		return black
	}

	switch k.variant {
	case Color:
		smooth := SmoothIteration(o.Iteration, o.Z.Dot(o.Z))
		rgb := HSVToRGB(mgl64.Vec3{smooth / 64, 0.8, 0.8})
		stripe := 0.8
		if Fract(smooth) >= 0.5 {
			stripe = 1
		}
		return rgb.Mul(stripe).Vec4(1)

	case Image:
		smooth := SmoothIteration(o.Iteration, o.Z.Dot(o.Z))
		return o.Accum.Mul(65 / smooth).Vec4(1)

	case Field:
		scale := 100.0
		if o.Iteration != 0 {
			scale = 1 / (0.01 * float64(o.Iteration))
		}
		return o.Accum.Mul(scale).Vec4(1)
	}

	return black
}
