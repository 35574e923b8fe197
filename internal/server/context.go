package server

import (
	"context"

	"github.com/vellum-dev/vellum/pkg/rbac"
)

type contextKey int

const capabilitiesContextKey contextKey = iota

func withCapabilities(ctx context.Context, caps *rbac.ProcessedCapabilities) context.Context {
	return context.WithValue(ctx, capabilitiesContextKey, caps)
}

func capabilitiesFromContext(ctx context.Context) *rbac.ProcessedCapabilities {
	caps, _ := ctx.Value(capabilitiesContextKey).(*rbac.ProcessedCapabilities)
	return caps
}
