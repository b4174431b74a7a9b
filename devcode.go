//go:build !devlogin

package authcore

// Production builds carry no fixed-code path at all; the constant folds
// the branch in RequestCode away. The alternative file behind the
// devlogin build tag is the only way to turn this on, so a runtime toggle
// cannot reach it.
const (
	devFixedCodeEnabled = false
	devFixedCode        = ""
)
