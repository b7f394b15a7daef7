package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// FullExtent is the size of the complex plane region shown at ZoomPower 0.
var FullExtent = mgl64.Vec2{5, 4}

// ViewPort is the rectangle of the complex plane mapped onto the output.
type ViewPort struct {
	Center    mgl64.Vec2
	ZoomPower int
}

func (v ViewPort) Zoom() float64 {
	return math.Exp2(-float64(v.ZoomPower))
}

func (v ViewPort) Extent() mgl64.Vec2 {
	return FullExtent.Mul(v.Zoom())
}

func (v ViewPort) BottomLeft() mgl64.Vec2 {
	return v.Center.Sub(v.Extent().Mul(0.5))
}

// Map returns the point of the complex plane under uv, where uv (0,0) is
// the bottom-left corner of the output and (1,1) the top-right.
func (v ViewPort) Map(uv mgl64.Vec2) mgl64.Vec2 {
	e := v.Extent()
	bl := v.BottomLeft()
	return mgl64.Vec2{bl[0] + uv[0]*e[0], bl[1] + uv[1]*e[1]}
}

// Unmap is the inverse of Map.
func (v ViewPort) Unmap(z mgl64.Vec2) mgl64.Vec2 {
	e := v.Extent()
	bl := v.BottomLeft()
	return mgl64.Vec2{(z[0] - bl[0]) / e[0], (z[1] - bl[1]) / e[1]}
}
