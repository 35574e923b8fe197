// Package rbac provides role-based access control for the admin HTTP API.
//
// This is deliberately a different authorization question than the
// Permission Bridge (pkg/permission): RBAC here decides who may call the
// trust-store management API over HTTP; the bridge decides whether an
// already-running plugin may perform a privileged operation. The two
// never share state.
package rbac

import (
	"time"
)

// ProcessedCapabilities represents the resolved, expiring access grant for
// an admin API caller.
type ProcessedCapabilities struct {
	Subject   string                        `json:"subject"`
	Roles     []string                      `json:"roles"`
	Resources map[string]ResourcePermission `json:"resources"`
	ExpiresAt time.Time                     `json:"expires_at"`
	SessionID string                        `json:"session_id,omitempty"`
}

// ResourcePermission defines what actions a caller can perform on an
// admin API resource (e.g. "trust-store", "discovery", "permission-bridge").
type ResourcePermission struct {
	CanRead    bool `json:"can_read"`
	CanWrite   bool `json:"can_write"`
	CanExecute bool `json:"can_execute"`
	CanAdmin   bool `json:"can_admin"`
}

// Policy represents an RBAC policy configuration.
type Policy struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

// Rule defines access rules for a resource.
type Rule struct {
	Resource    string   `yaml:"resource"`
	Permissions []string `yaml:"permissions"` // read, write, execute, admin
	Conditions  []string `yaml:"conditions,omitempty"`
}

// PolicyConfig represents the complete RBAC configuration.
type PolicyConfig struct {
	Policies map[string]Policy `yaml:"policies"`
	Default  string            `yaml:"default"` // default policy for unknown roles
}

// HasPermission checks if capabilities allow a specific action on a resource.
func (pc *ProcessedCapabilities) HasPermission(resource string, permission string) bool {
	if perm, exists := pc.Resources[resource]; exists {
		return pc.checkPermission(perm, permission)
	}

	if wildcard, exists := pc.Resources["*"]; exists {
		return pc.checkPermission(wildcard, permission)
	}

	return false
}

func (pc *ProcessedCapabilities) checkPermission(perm ResourcePermission, permission string) bool {
	switch permission {
	case "read":
		return perm.CanRead
	case "write":
		return perm.CanWrite
	case "execute":
		return perm.CanExecute
	case "admin":
		return perm.CanAdmin
	default:
		return false
	}
}

// IsValid checks if the capabilities are still valid.
func (pc *ProcessedCapabilities) IsValid() bool {
	return time.Now().Before(pc.ExpiresAt)
}

// GetAllowedResources returns the resources the caller has any access to.
func (pc *ProcessedCapabilities) GetAllowedResources() []string {
	resources := make([]string, 0, len(pc.Resources))
	for resource, perm := range pc.Resources {
		if resource != "*" && (perm.CanRead || perm.CanWrite || perm.CanExecute || perm.CanAdmin) {
			resources = append(resources, resource)
		}
	}
	return resources
}
