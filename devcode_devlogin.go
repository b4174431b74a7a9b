//go:build devlogin

package authcore

// Built only with -tags devlogin: every challenge uses this well-known
// code and no email is dispatched. For local frontend work against a
// stack without a mail sandbox.
const (
	devFixedCodeEnabled = true
	devFixedCode        = "000000"
)
