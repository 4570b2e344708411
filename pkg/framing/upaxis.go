package framing

import (
	"math"

	"github.com/usdtools/usdthumb/pkg/geometry"
)

// parallelThreshold is the |cos| above which an up candidate is treated
// as parallel to the view direction and therefore unusable.
const parallelThreshold = 0.999

// upFallbacks are tried in order after the preferred up axis, so that a
// usable up always exists no matter which way the camera looks.
var upFallbacks = []geometry.Vector3{
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: 1},
	{X: 1, Y: 0, Z: 0},
}

// chooseUp selects the up axis for a camera looking along forward
// (a unit vector). The preferred axis wins unless it is degenerate or
// parallel to forward, in which case the first usable fallback is
// substituted.
func chooseUp(preferred, forward geometry.Vector3) geometry.Vector3 {
	candidates := make([]geometry.Vector3, 0, 1+len(upFallbacks))
	if preferred.Length() > 0 && preferred.IsFinite() {
		candidates = append(candidates, preferred.Normalize())
	}
	candidates = append(candidates, upFallbacks...)

	for _, c := range candidates {
		if math.Abs(c.Dot(forward)) < parallelThreshold {
			return c
		}
	}
	// Unreachable: forward cannot be parallel to all three world axes.
	return upFallbacks[0]
}
