//go:build !sgddebug

package latent

// debugCheckNormal is a no-op unless the sgddebug build tag is set.
func debugCheckNormal(float64) {}
