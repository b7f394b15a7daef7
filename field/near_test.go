package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// near reports whether a and b differ by at most tol in every component.
// mgl64's ApproxEqualThreshold is relative and treats a zero component as
// needing an error below tol², which RGBToHSV's epsilon term never meets.
func near(a, b []float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func near2(a, b mgl64.Vec2, tol float64) bool { return near(a[:], b[:], tol) }
func near3(a, b mgl64.Vec3, tol float64) bool { return near(a[:], b[:], tol) }
func near4(a, b mgl64.Vec4, tol float64) bool { return near(a[:], b[:], tol) }
