// Package remediation executes bounded corrective actions against the cloud
// provider: scaling a service, rolling back a deployment, or updating a
// runtime parameter. Every action, successful or failed, is journalled into
// the action log. Failed actions are never retried automatically.
package remediation

import (
	"context"

	"github.com/codeready-toolchain/forge/pkg/actions"
)

// ActionResult is the opaque record a provider returns for one action.
type ActionResult map[string]any

// Adapter is the remediation contract the orchestrator depends on.
type Adapter interface {
	ScaleService(ctx context.Context, cluster, service string, desired int, reason string) (ActionResult, error)
	RollbackDeployment(ctx context.Context, app, group, reason string) (ActionResult, error)
	UpdateParameter(ctx context.Context, name, value, desc, service string) (ActionResult, error)
}

// journal records an action outcome and stamps the record id into the result.
func journal(log *actions.Log, actionType, service, reason string, result ActionResult, err error) {
	status := actions.StatusCompleted
	if err != nil {
		status = actions.StatusFailed
		result = ActionResult{"error": err.Error()}
	}
	id := log.Record(actionType, service, status, reason, result)
	if err == nil {
		result["action_id"] = id
	}
}
