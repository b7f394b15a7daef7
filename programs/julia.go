package programs

import (
	_ "embed"

	"github.com/stewi1014/juliafield/field"
)

var (
	//go:embed shaders/common.glsl
	commonFragment string

	//go:embed shaders/julia.frag
	juliaFragment string

	//go:embed shaders/julia_image.frag
	juliaImageFragment string

	//go:embed shaders/julia_field.frag
	juliaFieldFragment string
)

func init() {
	for _, p := range []*Program{
		{
			Name:           "julia",
			Variant:        field.Color,
			VertexShader:   defaultVertexShader,
			FragmentShader: commonFragment + juliaFragment,
		},
		{
			Name:           "julia-image",
			Variant:        field.Image,
			VertexShader:   defaultVertexShader,
			FragmentShader: commonFragment + juliaImageFragment,
		},
		{
			Name:           "julia-field",
			Variant:        field.Field,
			VertexShader:   defaultVertexShader,
			FragmentShader: commonFragment + juliaFieldFragment,
		},
	} {
		if err := NewProgram(p); err != nil {
			panic(err)
		}
	}
}
