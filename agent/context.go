package agent

import (
	"context"

	"github.com/BaSui01/agentrelay/internal/ctxkeys"
)

// ThreadIDFromContext returns the session thread id the engine attached to
// ctx before calling Process.
func ThreadIDFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.ThreadID(ctx)
}

// StepFromContext returns the zero-based index of the running turn.
func StepFromContext(ctx context.Context) (int, bool) {
	return ctxkeys.Step(ctx)
}

// NameFromContext returns the name of the agent taking the current turn.
func NameFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.Agent(ctx)
}
