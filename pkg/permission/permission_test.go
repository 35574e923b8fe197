package permission

import (
	"testing"

	"github.com/vellum-dev/vellum/pkg/capability"
)

const fingerprint = "a100000000000000000000000000000000000000000000000000000000aaaa"

func trustedEntry(caps ...capability.Capability) Entry {
	return Entry{
		ContentHash:  fingerprint,
		TrustLevel:   capability.TrustFull,
		Capabilities: caps,
	}
}

// S1's check: an entry granting execute-hooks allows an execute-hook op.
func TestCheckAllowed(t *testing.T) {
	entry := trustedEntry(capability.ExecuteHooks, capability.AccessFilesystem)
	d := Check(entry, true, fingerprint, capability.Operation{Kind: capability.OpExecuteHook})
	if !d.Allowed {
		t.Errorf("expected allowed, got %+v", d)
	}
}

// S2: no entry at all denies as untrusted.
func TestCheckDeniedUntrusted(t *testing.T) {
	d := Check(Entry{}, false, fingerprint, capability.Operation{Kind: capability.OpExecuteHook})
	if d.Allowed || d.Reason != ReasonUntrusted {
		t.Errorf("expected DeniedUntrusted, got %+v", d)
	}
}

// S3: fingerprint mismatch after plugin update.
func TestCheckDeniedFingerprintMismatch(t *testing.T) {
	entry := trustedEntry(capability.ExecuteHooks)
	d := Check(entry, true, "b200000000000000000000000000000000000000000000000000000000bbbb",
		capability.Operation{Kind: capability.OpExecuteHook})
	if d.Allowed || d.Reason != ReasonFingerprintMismatch {
		t.Errorf("expected DeniedFingerprintMismatch, got %+v", d)
	}
	if d.Expected != fingerprint {
		t.Errorf("expected Expected=%s, got %s", fingerprint, d.Expected)
	}
	if d.Observed != "b200000000000000000000000000000000000000000000000000000000bbbb" {
		t.Errorf("unexpected Observed: %s", d.Observed)
	}
}

// S4: capability denial when the required capability wasn't granted.
func TestCheckDeniedCapability(t *testing.T) {
	entry := trustedEntry(capability.ExecuteHooks, capability.AccessFilesystem)
	d := Check(entry, true, fingerprint, capability.Operation{Kind: capability.OpNetworkRequest})
	if d.Allowed || d.Reason != ReasonCapability {
		t.Errorf("expected DeniedCapability, got %+v", d)
	}
	if d.Required != capability.NetworkAccess {
		t.Errorf("expected required=%s, got %s", capability.NetworkAccess, d.Required)
	}
}

func TestCheckDeniedWhenTrustLevelNone(t *testing.T) {
	entry := Entry{
		ContentHash:  fingerprint,
		TrustLevel:   capability.TrustNone,
		Capabilities: []capability.Capability{capability.ExecuteHooks},
	}
	d := Check(entry, true, fingerprint, capability.Operation{Kind: capability.OpExecuteHook})
	if d.Allowed || d.Reason != ReasonCapability {
		t.Errorf("expected trustLevel none to deny as capability, got %+v", d)
	}
}

// P3: for any non-empty capability set including the required one, with
// trust level not none and matching fingerprint, the decision is Allowed;
// removing the required capability flips it to DeniedCapability.
func TestCheckProperty_CapabilityPresenceDeterminesOutcome(t *testing.T) {
	allOps := []capability.OperationKind{
		capability.OpExecuteHook,
		capability.OpSpawnSubagent,
		capability.OpReadFile,
		capability.OpWriteFile,
		capability.OpNetworkRequest,
		capability.OpStartMCPServer,
	}

	for _, kind := range allOps {
		required, _ := capability.RequiredCapability(kind)

		withCap := trustedEntry(required, capability.MCPServers)
		d := Check(withCap, true, fingerprint, capability.Operation{Kind: kind})
		if !d.Allowed {
			t.Errorf("%s: expected allowed when required capability present, got %+v", kind, d)
		}

		withoutCap := trustedEntry(capability.ExecuteHooks, capability.SpawnSubagent, capability.AccessFilesystem, capability.NetworkAccess, capability.MCPServers)
		withoutCap.Capabilities = removeCapability(withoutCap.Capabilities, required)
		d2 := Check(withoutCap, true, fingerprint, capability.Operation{Kind: kind})
		if d2.Allowed || d2.Required != required {
			t.Errorf("%s: expected DeniedCapability(%s) when absent, got %+v", kind, required, d2)
		}
	}
}

func removeCapability(caps []capability.Capability, target capability.Capability) []capability.Capability {
	out := make([]capability.Capability, 0, len(caps))
	for _, c := range caps {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}
