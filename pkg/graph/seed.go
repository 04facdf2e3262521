package graph

import (
	"time"

	"github.com/codeready-toolchain/forge/pkg/models"
)

// seedService is one row of the demo topology.
// name, type, team, criticality, health, avg_ms, p99_ms
type seedService struct {
	name        string
	svcType     string
	team        string
	criticality string
	health      float64
	avgMs       float64
	p99Ms       float64
}

// seedEdge is one CALLS edge: caller, callee, avg_ms, p99_ms, rpm.
type seedEdge struct {
	caller string
	callee string
	avgMs  float64
	p99Ms  float64
	rpm    float64
}

// seedDeployment is one deployment: service, version, hours ago, status.
type seedDeployment struct {
	service  string
	version  string
	hoursAgo int
	status   string
}

// A 24-service fintech topology. payment-service is degraded and the
// external payment-gateway is the planted root cause.
var seedServices = []seedService{
	{"api-gateway", "gateway", "platform", "critical", 98, 8, 28},
	{"auth-service", "internal", "platform", "critical", 97, 6, 18},
	{"user-service", "internal", "users", "high", 98, 9, 30},
	{"order-service", "internal", "orders", "critical", 97, 14, 45},
	{"checkout-service", "internal", "orders", "critical", 96, 18, 60},
	{"payment-service", "internal", "payments", "critical", 42, 420, 1800},
	{"inventory-service", "internal", "catalog", "high", 98, 11, 38},
	{"catalog-service", "internal", "catalog", "medium", 99, 10, 32},
	{"fraud-detection-svc", "internal", "payments", "high", 97, 35, 110},
	{"shipping-service", "internal", "logistics", "high", 98, 22, 70},
	{"wallet-service", "internal", "payments", "high", 95, 28, 95},
	{"kyc-service", "internal", "compliance", "medium", 99, 40, 130},
	{"coupon-service", "internal", "marketing", "medium", 99, 7, 22},
	{"review-service", "internal", "catalog", "low", 99, 12, 40},
	{"notification-svc", "internal", "platform", "medium", 98, 6, 20},
	{"search-service", "internal", "catalog", "medium", 98, 22, 85},
	{"recommendation-svc", "internal", "data", "low", 99, 35, 110},
	{"analytics-service", "internal", "data", "low", 99, 25, 90},
	{"postgres-orders", "database", "platform", "critical", 99, 3, 12},
	{"postgres-catalog", "database", "platform", "high", 99, 3, 11},
	{"redis-cache", "cache", "platform", "high", 99, 1, 4},
	{"payment-gateway", "external", "external", "critical", 61, 340, 1200},
	{"twilio-sms", "external", "external", "low", 99, 80, 200},
	{"sendgrid-email", "external", "external", "low", 99, 60, 180},
}

var seedEdges = []seedEdge{
	{"api-gateway", "auth-service", 5, 15, 2000},
	{"api-gateway", "user-service", 9, 30, 800},
	{"api-gateway", "order-service", 14, 48, 600},
	{"api-gateway", "search-service", 22, 88, 1200},
	{"api-gateway", "catalog-service", 10, 33, 900},
	{"api-gateway", "recommendation-svc", 38, 120, 400},
	{"order-service", "checkout-service", 18, 60, 400},
	{"order-service", "inventory-service", 11, 38, 400},
	{"order-service", "shipping-service", 24, 75, 200},
	{"order-service", "notification-svc", 6, 22, 400},
	{"order-service", "postgres-orders", 3, 12, 1600},
	{"order-service", "coupon-service", 7, 22, 200},
	{"checkout-service", "payment-service", 420, 1800, 200},
	{"checkout-service", "fraud-detection-svc", 36, 115, 200},
	{"checkout-service", "inventory-service", 11, 38, 200},
	{"checkout-service", "wallet-service", 30, 100, 100},
	{"checkout-service", "redis-cache", 1, 4, 800},
	{"payment-service", "payment-gateway", 340, 1200, 200},
	{"payment-service", "fraud-detection-svc", 36, 110, 200},
	{"payment-service", "postgres-orders", 3, 12, 600},
	{"wallet-service", "payment-service", 420, 1800, 100},
	{"wallet-service", "kyc-service", 42, 135, 100},
	{"wallet-service", "postgres-orders", 3, 12, 300},
	{"user-service", "postgres-orders", 3, 10, 400},
	{"user-service", "redis-cache", 1, 3, 1200},
	{"user-service", "kyc-service", 42, 135, 100},
	{"catalog-service", "postgres-catalog", 3, 11, 600},
	{"catalog-service", "redis-cache", 1, 3, 1800},
	{"inventory-service", "postgres-orders", 3, 10, 800},
	{"inventory-service", "postgres-catalog", 3, 11, 400},
	{"search-service", "redis-cache", 1, 3, 2400},
	{"search-service", "postgres-catalog", 3, 11, 600},
	{"review-service", "postgres-catalog", 3, 11, 200},
	{"notification-svc", "redis-cache", 1, 3, 400},
	{"notification-svc", "twilio-sms", 82, 205, 100},
	{"notification-svc", "sendgrid-email", 62, 185, 200},
	{"recommendation-svc", "analytics-service", 30, 95, 100},
	{"recommendation-svc", "redis-cache", 1, 3, 300},
	{"analytics-service", "postgres-orders", 22, 85, 60},
	{"analytics-service", "postgres-catalog", 20, 80, 60},
	{"auth-service", "redis-cache", 1, 3, 4000},
	{"auth-service", "postgres-orders", 3, 10, 400},
}

var seedDeployments = []seedDeployment{
	{"auth-service", "v3.1.0", 48, "success"},
	{"user-service", "v2.8.3", 36, "success"},
	{"catalog-service", "v1.9.1", 72, "success"},
	{"inventory-service", "v2.3.0", 24, "success"},
	{"search-service", "v4.0.2", 96, "success"},
	{"recommendation-svc", "v1.2.1", 120, "success"},
	{"analytics-service", "v2.0.0", 144, "success"},
	{"notification-svc", "v1.7.4", 48, "success"},
	{"fraud-detection-svc", "v2.1.0", 60, "success"},
	{"shipping-service", "v1.4.2", 72, "success"},
	{"kyc-service", "v3.0.1", 168, "success"},
	{"coupon-service", "v1.1.0", 96, "success"},
	{"review-service", "v1.0.5", 200, "success"},
	{"wallet-service", "v2.2.0", 48, "success"},
	{"payment-service", "v2.3.0", 6, "success"},
	// Two hours before the degradation window. The suspect.
	{"payment-service", "v2.3.1", 2, "success"},
	{"checkout-service", "v3.2.0", 8, "success"},
	{"order-service", "v5.1.2", 12, "success"},
	{"api-gateway", "v7.0.1", 24, "success"},
	{"recommendation-svc", "v1.2.2", 18, "failed"},
}

// Seed loads the demo topology. Idempotent: services and edges upsert by
// key, deployments by (service, version).
func (g *MemoryGraph) Seed() {
	now := time.Now().UTC()
	for _, s := range seedServices {
		g.UpsertService(models.ServiceNode{
			Name:         s.name,
			Type:         s.svcType,
			Team:         s.team,
			Criticality:  s.criticality,
			HealthScore:  s.health,
			AvgLatencyMs: s.avgMs,
			P99LatencyMs: s.p99Ms,
			DataSource:   "seed",
		})
	}
	for _, e := range seedEdges {
		g.UpsertEdge(models.DependencyEdge{
			Source:         e.caller,
			Target:         e.callee,
			AvgLatencyMs:   e.avgMs,
			P99LatencyMs:   e.p99Ms,
			RequestsPerMin: e.rpm,
		})
	}
	for _, d := range seedDeployments {
		g.addDeployment(d.service, d.version, d.status, now.Add(-time.Duration(d.hoursAgo)*time.Hour))
	}
}
