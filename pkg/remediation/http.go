package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/forge/pkg/actions"
	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/sony/gobreaker/v2"
)

// HTTPProvider calls a remediation gateway that fronts the cloud provider.
// A circuit breaker stops the orchestrator from hammering a rejecting
// provider; a rejected action is journalled as failed and never retried.
type HTTPProvider struct {
	baseURL string
	token   string
	log     *actions.Log
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[ActionResult]
}

// NewHTTPProvider creates a live remediation provider.
func NewHTTPProvider(baseURL, token string, log *actions.Log) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		token:   token,
		log:     log,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[ActionResult](gobreaker.Settings{
			Name:    "remediation",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (p *HTTPProvider) ScaleService(ctx context.Context, cluster, service string, desired int, reason string) (ActionResult, error) {
	result, err := p.post(ctx, "/actions/scale", map[string]any{
		"cluster":       cluster,
		"service":       service,
		"desired_count": desired,
		"reason":        reason,
	})
	journal(p.log, actions.TypeScaleECS, service, reason, result, err)
	if err != nil {
		return nil, errs.E(errs.KindRemediation, "remediation.ScaleService", err)
	}
	return result, nil
}

func (p *HTTPProvider) RollbackDeployment(ctx context.Context, app, group, reason string) (ActionResult, error) {
	result, err := p.post(ctx, "/actions/rollback", map[string]any{
		"application_name": app,
		"deployment_group": group,
		"reason":           reason,
	})
	journal(p.log, actions.TypeRollbackDeploy, group, reason, result, err)
	if err != nil {
		return nil, errs.E(errs.KindRemediation, "remediation.RollbackDeployment", err)
	}
	return result, nil
}

func (p *HTTPProvider) UpdateParameter(ctx context.Context, name, value, desc, service string) (ActionResult, error) {
	result, err := p.post(ctx, "/actions/parameter", map[string]any{
		"parameter_name": name,
		"value":          value,
		"description":    desc,
		"service":        service,
	})
	journal(p.log, actions.TypeUpdateParam, service, desc, result, err)
	if err != nil {
		return nil, errs.E(errs.KindRemediation, "remediation.UpdateParameter", err)
	}
	return result, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body map[string]any) (ActionResult, error) {
	return p.breaker.Execute(func() (ActionResult, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.token != "" {
			req.Header.Set("Authorization", "Bearer "+p.token)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("provider rejected action: status %d: %s", resp.StatusCode, raw)
		}
		var result ActionResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, err
		}
		return result, nil
	})
}
