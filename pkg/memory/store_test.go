package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)
	return s
}

func TestNewStore_InitializesDefaultDocument(t *testing.T) {
	s := newTestStore(t)

	snap := s.Snapshot()
	assert.Equal(t, "1.0", snap.Version)
	assert.Empty(t, snap.Services)
	assert.Empty(t, snap.GlobalPatterns)
	assert.Empty(t, snap.AnalysisHistory)
}

func TestNewStore_RejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewStore(path)
	require.Error(t, err)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))
}

func TestAddInsight_AppearsOnceWithOpenStatus(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddInsight("checkout-service", models.Insight{
		Category: models.CategoryPerformance,
		Severity: models.SeverityHigh,
		Title:    "P99 latency above SLO",
		Insight:  "P99 latency for checkout-service exceeded 800ms",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all := s.GetAllInsights("")
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, "checkout-service", all[0].Service)
	assert.Equal(t, models.StatusOpen, all[0].Status)
	assert.NotEmpty(t, all[0].Timestamp)
}

func TestGetAllInsights_FiltersByStatus(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.AddInsight("svc-a", models.Insight{Title: "one"})
	require.NoError(t, err)
	_, err = s.AddInsight("svc-b", models.Insight{Title: "two"})
	require.NoError(t, err)

	ok, err := s.UpdateInsightStatus(id1, models.StatusResolved)
	require.NoError(t, err)
	require.True(t, ok)

	open := s.GetAllInsights(models.StatusOpen)
	require.Len(t, open, 1)
	assert.Equal(t, "two", open[0].Title)

	resolved := s.GetAllInsights(models.StatusResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, id1, resolved[0].ID)
}

func TestUpdateInsightStatus(t *testing.T) {
	s := newTestStore(t)
	id, err := s.AddInsight("svc-a", models.Insight{Title: "finding"})
	require.NoError(t, err)

	t.Run("unknown id", func(t *testing.T) {
		ok, err := s.UpdateInsightStatus("ins-ffffffff", models.StatusResolved)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := s.UpdateInsightStatus(id, "closed")
		require.ErrorIs(t, err, errs.ErrInvalidInput)
	})

	t.Run("idempotent", func(t *testing.T) {
		ok, err := s.UpdateInsightStatus(id, models.StatusAcknowledged)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UpdateInsightStatus(id, models.StatusAcknowledged)
		require.NoError(t, err)
		assert.True(t, ok)

		all := s.GetAllInsights("")
		require.Len(t, all, 1)
		assert.Equal(t, models.StatusAcknowledged, all[0].Status)
	})
}

func TestAddPattern_MergesSimilarDescriptions(t *testing.T) {
	s := newTestStore(t)

	p := models.Pattern{
		Type:        "latency_spike",
		Description: "P99 latency spikes every 4 hours",
		Confidence:  0.5,
	}
	id1, err := s.AddPattern("svc-a", p)
	require.NoError(t, err)

	id2, err := s.AddPattern("svc-a", p)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	patterns := s.GetAllPatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "svc-a", patterns[0].Service)
	assert.Equal(t, 2, patterns[0].Occurrences)
	assert.InDelta(t, 0.52, patterns[0].Confidence, 1e-9)
	assert.NotEmpty(t, patterns[0].FirstDetected)
}

func TestAddPattern_ConfidenceCappedAt99(t *testing.T) {
	s := newTestStore(t)

	p := models.Pattern{Type: "cascade_risk", Description: "degradation cascades to callers", Confidence: 0.985}
	_, err := s.AddPattern("svc-a", p)
	require.NoError(t, err)
	_, err = s.AddPattern("svc-a", p)
	require.NoError(t, err)

	patterns := s.GetAllPatterns()
	require.Len(t, patterns, 1)
	assert.LessOrEqual(t, patterns[0].Confidence, 0.99)
}

func TestAddPattern_DifferentTypeNeverMerges(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddPattern("svc-a", models.Pattern{Type: "latency_spike", Description: "spikes at noon", Confidence: 0.5})
	require.NoError(t, err)
	_, err = s.AddPattern("svc-a", models.Pattern{Type: "periodic_overload", Description: "spikes at noon", Confidence: 0.5})
	require.NoError(t, err)

	assert.Len(t, s.GetAllPatterns(), 2)
}

func TestAddPattern_JaccardMerge(t *testing.T) {
	s := newTestStore(t)

	// Distinct 40-char prefixes, but heavy word overlap.
	id1, err := s.AddPattern("svc-a", models.Pattern{
		Type:        "dependency_bottleneck",
		Description: "database connection pool exhausted under peak traffic load",
		Confidence:  0.6,
	})
	require.NoError(t, err)
	id2, err := s.AddPattern("svc-a", models.Pattern{
		Type:        "dependency_bottleneck",
		Description: "connection pool exhausted under peak traffic load database",
		Confidence:  0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestAddGlobalPattern(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddGlobalPattern(models.Pattern{
		Type:             "cascade_failure",
		Description:      "payment path degrades together",
		Confidence:       0.8,
		ServicesInvolved: []string{"payment-service", "payment-gateway"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	patterns := s.GetAllPatterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, "global", patterns[0].Scope)
}

func TestUpdateBaseline_ReplacesAndStamps(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateBaseline("svc-a", models.Baseline{"p99_latency_ms": 420.0, "stale": true}))
	require.NoError(t, s.UpdateBaseline("svc-a", models.Baseline{"p99_latency_ms": 180.0}))

	mem := s.GetServiceMemory("svc-a")
	assert.Equal(t, 180.0, mem.BaselineMetrics["p99_latency_ms"])
	assert.NotContains(t, mem.BaselineMetrics, "stale")
	assert.NotEmpty(t, mem.BaselineMetrics["measured_at"])
}

func TestRecordAnalysis_RingKeepsLast100(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 105; i++ {
		_, err := s.RecordAnalysis(models.AnalysisSession{
			Trigger:          "manual",
			ServicesAnalyzed: []string{"svc-a"},
		})
		require.NoError(t, err)
	}
	assert.Len(t, s.Snapshot().AnalysisHistory, 100)
}

func TestGetRecommendations_OpenHighSeverityWithRecommendation(t *testing.T) {
	s := newTestStore(t)

	keep, err := s.AddInsight("svc-a", models.Insight{
		Severity:       models.SeverityCritical,
		Title:          "critical finding",
		Recommendation: "roll back v2.3.1",
	})
	require.NoError(t, err)
	_, err = s.AddInsight("svc-a", models.Insight{
		Severity: models.SeverityHigh,
		Title:    "no recommendation",
	})
	require.NoError(t, err)
	_, err = s.AddInsight("svc-a", models.Insight{
		Severity:       models.SeverityLow,
		Title:          "low severity",
		Recommendation: "tune later",
	})
	require.NoError(t, err)

	recs := s.GetRecommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, keep, recs[0].ID)

	// Acknowledged insights drop out.
	_, err = s.UpdateInsightStatus(keep, models.StatusAcknowledged)
	require.NoError(t, err)
	assert.Empty(t, s.GetRecommendations())
}

func TestPersistence_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	_, err = s.AddInsight("svc-a", models.Insight{Title: "persisted"})
	require.NoError(t, err)
	_, err = s.AddPattern("svc-a", models.Pattern{Type: "latency_spike", Description: "slow", Confidence: 0.7})
	require.NoError(t, err)

	// The on-disk file parses on its own.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc models.Memory
	require.NoError(t, json.Unmarshal(data, &doc))

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.GetAllInsights(""), 1)
	assert.Len(t, reloaded.GetAllPatterns(), 1)
}

func TestPersistence_FailureLeavesMemoryUnchanged(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root")
	}
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "memory.json"))
	require.NoError(t, err)

	_, err = s.AddInsight("svc-a", models.Insight{Title: "first"})
	require.NoError(t, err)

	// Make the directory unwritable so the tmp-file write fails.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err = s.AddInsight("svc-a", models.Insight{Title: "second"})
	require.Error(t, err)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))

	assert.Len(t, s.GetAllInsights(""), 1)
}
