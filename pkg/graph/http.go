package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
)

// HTTPClient talks to a remote graph query service exposing the fixed
// Adapter vocabulary as REST endpoints.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a graph client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPClient) ServiceHealth(ctx context.Context, name string) (*models.ServiceNode, error) {
	var out models.ServiceNode
	if err := c.get(ctx, "/services/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Dependencies(ctx context.Context, name string) (*DependencyReport, error) {
	var out DependencyReport
	if err := c.get(ctx, "/services/"+url.PathEscape(name)+"/dependencies", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) BlastRadius(ctx context.Context, name string, maxHops int) (*BlastRadiusReport, error) {
	q := url.Values{"hops": {strconv.Itoa(maxHops)}}
	var out BlastRadiusReport
	if err := c.get(ctx, "/services/"+url.PathEscape(name)+"/blast-radius", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RecentChanges(ctx context.Context, name string, hours int) ([]models.Deployment, error) {
	q := url.Values{"hours": {strconv.Itoa(hours)}}
	var out struct {
		Changes []models.Deployment `json:"changes"`
	}
	if err := c.get(ctx, "/services/"+url.PathEscape(name)+"/changes", q, &out); err != nil {
		return nil, err
	}
	return out.Changes, nil
}

func (c *HTTPClient) SlowestDependencies(ctx context.Context, name string) ([]DependencyCall, error) {
	var out struct {
		Dependencies []DependencyCall `json:"dependencies"`
	}
	if err := c.get(ctx, "/services/"+url.PathEscape(name)+"/slowest-dependencies", nil, &out); err != nil {
		return nil, err
	}
	return out.Dependencies, nil
}

func (c *HTTPClient) WriteMetrics(ctx context.Context, name string, fields map[string]any) error {
	return c.post(ctx, "/services/"+url.PathEscape(name)+"/metrics", fields, nil)
}

func (c *HTTPClient) ListServices(ctx context.Context) ([]models.ServiceNode, error) {
	var out struct {
		Services []models.ServiceNode `json:"services"`
	}
	if err := c.get(ctx, "/services", nil, &out); err != nil {
		return nil, err
	}
	return out.Services, nil
}

func (c *HTTPClient) ListEdges(ctx context.Context) ([]models.DependencyEdge, error) {
	var out struct {
		Edges []models.DependencyEdge `json:"edges"`
	}
	if err := c.get(ctx, "/edges", nil, &out); err != nil {
		return nil, err
	}
	return out.Edges, nil
}

func (c *HTTPClient) RecordDeployment(ctx context.Context, service, version, status string) (*models.Deployment, error) {
	body := map[string]any{"service": service, "version": version, "status": status}
	var out models.Deployment
	if err := c.post(ctx, "/deployments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RecentDeployments(ctx context.Context, limit int) ([]models.Deployment, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out struct {
		Deployments []models.Deployment `json:"deployments"`
	}
	if err := c.get(ctx, "/deployments/recent", q, &out); err != nil {
		return nil, err
	}
	return out.Deployments, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errs.E(errs.KindGraph, "graph.get", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errs.E(errs.KindGraph, "graph.post", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errs.E(errs.KindGraph, "graph.post", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errs.E(errs.KindGraph, "graph.request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("graph %s: %w", req.URL.Path, errs.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Errorf(errs.KindGraph, "graph.request", "status %d: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.E(errs.KindGraph, "graph.decode", err)
	}
	return nil
}
