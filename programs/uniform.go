package programs

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stewi1014/juliafield/field"
)

// Uniforms is the per-render configuration of a program. Fields tagged
// with a uniform name are uploaded to the GPU; Iterations and Field select
// the compiled variant instead.
type Uniforms struct {
	Center    mgl64.Vec2 `uniform:"center"`
	ZoomPower int32      `uniform:"zoomPower"`
	C         mgl64.Vec2 `uniform:"c"`
	P         float64    `uniform:"p"`
	Q         float64    `uniform:"q"`
	R         float64    `uniform:"r"`

	Iterations int32
	Field      string
}

func DefaultUniforms() Uniforms {
	return Uniforms{
		C:          mgl64.Vec2{-0.8, 0.156},
		P:          2,
		Q:          2,
		R:          3,
		Iterations: field.DefaultMaxIterations,
		Field:      "zero",
	}
}

func (u Uniforms) Frame(source field.Sampler) field.Frame {
	return field.Frame{
		View: field.ViewPort{
			Center:    u.Center,
			ZoomPower: int(u.ZoomPower),
		},
		Julia: field.JuliaParams{
			C: u.C,
			P: u.P,
			Q: u.Q,
			R: u.R,
		},
		Source: source,
	}
}
