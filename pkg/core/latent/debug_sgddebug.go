//go:build sgddebug

package latent

import (
	"fmt"
	"math"
)

// smallestNormal is the smallest positive normal float64 (0x1p-1022).
const smallestNormal = 2.2250738585072014e-308

// debugCheckNormal panics on zero, subnormal, infinite, or NaN dot products.
// Enabled only by the sgddebug build tag; release builds skip the check.
func debugCheckNormal(dp float64) {
	if math.IsNaN(dp) || math.IsInf(dp, 0) || math.Abs(dp) < smallestNormal {
		panic(fmt.Sprintf("latent: non-normal dot product %g", dp))
	}
}
