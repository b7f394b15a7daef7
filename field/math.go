package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Atan2 is the four quadrant arctangent of y/x. The angle of the origin is
// defined as 0.
func Atan2(y, x float64) float64 {
	if x == 0 && y == 0 {
		return 0
	}
	return math.Atan2(y, x)
}

// Square returns z² + c.
func Square(z, c mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{
		c[0] + z[0]*z[0] - z[1]*z[1],
		c[1] + 2*z[0]*z[1],
	}
}

// Power returns z^p + c using the polar form.
func Power(z mgl64.Vec2, p float64, c mgl64.Vec2) mgl64.Vec2 {
	scale := math.Pow(z.Len(), p)
	theta := p * Atan2(z[1], z[0])
	return mgl64.Vec2{
		c[0] + scale*math.Cos(theta),
		c[1] + scale*math.Sin(theta),
	}
}

// Fract is GLSL fract: x - floor(x).
func Fract(x float64) float64 {
	return x - math.Floor(x)
}

// SmoothIteration refines the integer escape index into a continuous value.
// mag2 is |z|² at escape. When log(mag2) is negative the logarithmic
// correction is undefined and an additive one is used instead.
func SmoothIteration(escaped int, mag2 float64) float64 {
	logMag := math.Log(mag2)
	if logMag >= 0 {
		return float64(escaped) - math.Log(logMag)/math.Ln2
	}
	return logMag + float64(escaped)
}

// HSVToRGB converts a colour with hue, saturation and value in [0,1] to RGB.
// Hue wraps.
func HSVToRGB(c mgl64.Vec3) mgl64.Vec3 {
	var rgb mgl64.Vec3
	for i, k := range [3]float64{1, 2.0 / 3, 1.0 / 3} {
		p := math.Abs(Fract(c[0]+k)*6 - 3)
		rgb[i] = c[2] * mix(1, mgl64.Clamp(p-1, 0, 1), c[1])
	}
	return rgb
}

// RGBToHSV is the inverse of HSVToRGB.
func RGBToHSV(c mgl64.Vec3) mgl64.Vec3 {
	const eps = 1.0e-10

	// p = mix(vec4(c.bg, K.wz), vec4(c.gb, K.xy), step(c.b, c.g))
	var p mgl64.Vec4
	if c[2] <= c[1] {
		p = mgl64.Vec4{c[1], c[2], 0, -1.0 / 3}
	} else {
		p = mgl64.Vec4{c[2], c[1], -1, 2.0 / 3}
	}

	var q mgl64.Vec4
	if p[0] <= c[0] {
		q = mgl64.Vec4{c[0], p[1], p[2], p[0]}
	} else {
		q = mgl64.Vec4{p[0], p[1], p[3], c[0]}
	}

	d := q[0] - math.Min(q[3], q[1])
	return mgl64.Vec3{
		math.Abs(q[2] + (q[3]-q[1])/(6*d+eps)),
		d / (q[0] + eps),
		q[0],
	}
}

func mix(x, y, a float64) float64 {
	return x*(1-a) + y*a
}
