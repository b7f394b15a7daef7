package field

import "github.com/go-gl/mathgl/mgl64"

// Solid is a Sampler returning the same colour everywhere.
type Solid mgl64.Vec3

func (s Solid) Sample(mgl64.Vec2) mgl64.Vec3 {
	return mgl64.Vec3(s)
}
