package remediation

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/google/uuid"
)

// DemoProvider returns deterministic, realistic results without touching any
// cloud API. Same interface as the live provider; used when DEMO_MODE is on.
type DemoProvider struct {
	log *actions.Log
}

// NewDemoProvider creates a demo remediation provider journalling into log.
func NewDemoProvider(log *actions.Log) *DemoProvider {
	return &DemoProvider{log: log}
}

func (p *DemoProvider) ScaleService(_ context.Context, cluster, service string, desired int, reason string) (ActionResult, error) {
	const previous = 2
	result := ActionResult{
		"status":                         "success",
		"message":                        fmt.Sprintf("[DEMO] Scaled %s from %d to %d tasks", service, previous, desired),
		"cluster":                        cluster,
		"service":                        service,
		"previous_desired_count":         previous,
		"new_desired_count":              desired,
		"stabilization_estimate_seconds": 45,
	}
	journal(p.log, actions.TypeScaleECS, service, reason, result, nil)
	return result, nil
}

func (p *DemoProvider) RollbackDeployment(_ context.Context, app, group, reason string) (ActionResult, error) {
	rollbackID := "d-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	result := ActionResult{
		"status":                       "success",
		"message":                      fmt.Sprintf("[DEMO] Rollback initiated for %s", group),
		"rollback_deployment_id":       rollbackID,
		"application_name":             app,
		"deployment_group":             group,
		"reverts_to":                   "v2.3.0",
		"estimated_completion_seconds": 90,
	}
	journal(p.log, actions.TypeRollbackDeploy, group, reason, result, nil)
	return result, nil
}

func (p *DemoProvider) UpdateParameter(_ context.Context, name, value, desc, service string) (ActionResult, error) {
	result := ActionResult{
		"status":         "success",
		"message":        fmt.Sprintf("[DEMO] Updated parameter %s", name),
		"parameter_name": name,
		"old_value":      "30000",
		"new_value":      value,
		"version":        2,
	}
	journal(p.log, actions.TypeUpdateParam, service, desc, result, nil)
	return result, nil
}
