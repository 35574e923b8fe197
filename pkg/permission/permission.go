// Package permission implements C4: the Permission Bridge, a pure,
// synchronous decision function over a Trust Store entry and an
// attempted operation (spec.md §4.4). It performs no I/O (I6) so it is
// deterministic and safe to call at a trust-critical moment.
package permission

import "github.com/vellum-dev/vellum/pkg/capability"

// Decision is the tagged result of Check. Denial is data, not an error:
// callers branch on Reason and surface user-visible remediation.
type Decision struct {
	Allowed  bool                   `json:"allowed"`
	Reason   DenialReason           `json:"reason,omitempty"`
	Required capability.Capability  `json:"required,omitempty"` // set for DeniedCapability
	Expected string                 `json:"expected,omitempty"` // set for DeniedFingerprintMismatch
	Observed string                 `json:"observed,omitempty"` // set for DeniedFingerprintMismatch
}

// DenialReason discriminates why a Decision denied an operation. Zero
// value ReasonNone pairs with Allowed == true.
type DenialReason string

const (
	ReasonNone                   DenialReason = ""
	ReasonUntrusted              DenialReason = "untrusted"
	ReasonFingerprintMismatch    DenialReason = "fingerprint-mismatch"
	ReasonCapability             DenialReason = "capability"
)

// Entry is the subset of a trust.TrustedPlugin the Permission Bridge
// needs. Decoupled from pkg/trust's concrete type so this package stays
// a pure, dependency-light function of its inputs.
type Entry struct {
	ContentHash  string
	TrustLevel   capability.TrustLevel
	Capabilities []capability.Capability
}

func allowed() Decision {
	return Decision{Allowed: true, Reason: ReasonNone}
}

func deniedUntrusted() Decision {
	return Decision{Allowed: false, Reason: ReasonUntrusted}
}

func deniedFingerprintMismatch(expected, observed string) Decision {
	return Decision{
		Allowed:  false,
		Reason:   ReasonFingerprintMismatch,
		Expected: expected,
		Observed: observed,
	}
}

func deniedCapability(required capability.Capability) Decision {
	return Decision{Allowed: false, Reason: ReasonCapability, Required: required}
}

// Check decides whether the plugin described by entry may currently
// perform op, given currentFingerprint — the freshly computed
// ContentFingerprint of the active plugin bundle. hasEntry distinguishes
// "no trust record" from a zero-value Entry.
//
// Algorithm (spec.md §4.4):
//  1. No entry → DeniedUntrusted.
//  2. entry.ContentHash != currentFingerprint → DeniedFingerprintMismatch.
//  3. entry.TrustLevel == none → DeniedCapability.
//  4. op's required capability absent from entry.Capabilities → DeniedCapability;
//     otherwise Allowed.
func Check(entry Entry, hasEntry bool, currentFingerprint string, op capability.Operation) Decision {
	if !hasEntry {
		return deniedUntrusted()
	}

	if entry.ContentHash != currentFingerprint {
		return deniedFingerprintMismatch(entry.ContentHash, currentFingerprint)
	}

	required, known := capability.RequiredCapability(op.Kind)
	if !known {
		return deniedCapability(required)
	}

	if entry.TrustLevel == capability.TrustNone {
		return deniedCapability(required)
	}

	for _, c := range entry.Capabilities {
		if c == required {
			return allowed()
		}
	}
	return deniedCapability(required)
}
