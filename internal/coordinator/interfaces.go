package coordinator

import (
	"context"

	"github.com/dmitry-ulyanichev/render-com-steam-id-processor/internal/checkstore"
)

// UpstreamExecutor runs a single named check against one identifier. The
// HTTP transport and response parsing behind it are an external
// collaborator: spec.md scopes that entirely out of the coordination core,
// so this interface is the only seam the coordinator knows about.
type UpstreamExecutor interface {
	Execute(ctx context.Context, check checkstore.CheckName, steamID string) ExecutionResult
}

// ExecutionResult is the outcome of one UpstreamExecutor.Execute call.
//
// Exactly one of two shapes applies: either Err is nil and Status carries a
// terminal or deferred verdict the executor already decided on its own
// policy (passed/failed/deferred), or Err is non-nil and RequestURL names
// the endpoint that was hit so the coordinator can have the cooldown
// controller classify the failure and derive the status itself.
type ExecutionResult struct {
	Status     checkstore.CheckStatus
	Err        error
	RequestURL string
}
