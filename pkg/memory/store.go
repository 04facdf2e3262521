// Package memory implements the persistent knowledge store: per-service
// baselines, patterns, insights, global patterns, and the analysis history.
//
// The store is a single JSON document guarded by one mutex. Every mutation
// persists via atomic file replace (write <file>.tmp, rename), so readers of
// the on-disk file always see a complete pre-write or post-write document.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/forge/pkg/errs"
	"github.com/codeready-toolchain/forge/pkg/models"
	"github.com/google/uuid"
)

const (
	// SimilarPrefixLen and SimilarJaccardThreshold tune the pattern merge
	// rule: same type plus a matching description prefix, or a word-set
	// Jaccard overlap above the threshold, merges instead of inserting.
	SimilarPrefixLen        = 40
	SimilarJaccardThreshold = 0.6

	historyLimit = 100
)

// Store owns the knowledge document and its persistence path.
type Store struct {
	mu   sync.Mutex
	path string
	mem  *models.Memory
}

// NewStore opens (or initializes) the knowledge document at path.
// A missing or unreadable file yields a fresh default document; a present
// but corrupt file is an error so bad state is never silently discarded.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.mem = defaultMemory()
	case err != nil:
		return nil, errs.E(errs.KindStorage, "memory.NewStore", err)
	default:
		var m models.Memory
		if jerr := json.Unmarshal(data, &m); jerr != nil {
			return nil, errs.E(errs.KindStorage, "memory.NewStore", jerr)
		}
		if m.Services == nil {
			m.Services = map[string]*models.ServiceMemory{}
		}
		s.mem = &m
	}
	return s, nil
}

func defaultMemory() *models.Memory {
	return &models.Memory{
		Version:         "1.0",
		LastUpdated:     models.Now(),
		Services:        map[string]*models.ServiceMemory{},
		GlobalPatterns:  []models.Pattern{},
		AnalysisHistory: []models.AnalysisSession{},
	}
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() *models.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMemory(s.mem)
}

// AddInsight appends an insight to the service's record and returns its id.
// Status is forced to open and the timestamp is stamped here.
func (s *Store) AddInsight(service string, ins models.Insight) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc := s.ensureService(service)
	if ins.ID == "" {
		ins.ID = newID("ins")
	}
	ins.Status = models.StatusOpen
	ins.Timestamp = models.Now()
	if ins.Severity == "" {
		ins.Severity = models.SeverityMedium
	}
	if ins.Category == "" {
		ins.Category = models.CategoryPerformance
	}

	appended := append(svc.Insights, ins)
	if err := s.persistWith(func(m *models.Memory) {
		m.Services[service].Insights = appended
	}); err != nil {
		return "", err
	}
	return ins.ID, nil
}

// GetAllInsights flattens insights across services, optionally filtered by
// status, sorted newest first.
func (s *Store) GetAllInsights(status string) []models.Insight {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Insight
	for name, svc := range s.mem.Services {
		for _, ins := range svc.Insights {
			if status != "" && ins.Status != status {
				continue
			}
			ins.Service = name
			out = append(out, ins)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

// UpdateInsightStatus sets the status of the insight with the given id.
// The first match across services wins.
func (s *Store) UpdateInsightStatus(id, status string) (bool, error) {
	if !models.ValidInsightStatus(status) {
		return false, fmt.Errorf("%w: status %q", errs.ErrInvalidInput, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, svc := range s.mem.Services {
		for i := range svc.Insights {
			if svc.Insights[i].ID != id {
				continue
			}
			prev := svc.Insights[i].Status
			if prev == status {
				return true, nil
			}
			if err := s.persistWith(func(m *models.Memory) {
				m.Services[name].Insights[i].Status = status
			}); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// AddPattern inserts a pattern for the service, merging into an existing one
// when type matches and the descriptions are similar. Merging bumps
// occurrences, nudges confidence up (capped at 0.99), refreshes
// last_confirmed, and overwrites the recommendation when one is supplied.
func (s *Store) AddPattern(service string, p models.Pattern) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc := s.ensureService(service)
	now := models.Now()

	for i := range svc.Patterns {
		ex := &svc.Patterns[i]
		if ex.Type != p.Type || !similar(ex.Description, p.Description) {
			continue
		}
		merged := *ex
		merged.LastConfirmed = now
		merged.Occurrences++
		merged.Confidence = min99(merged.Confidence + 0.02)
		if p.Recommendation != "" {
			merged.Recommendation = p.Recommendation
		}
		if err := s.persistWith(func(m *models.Memory) {
			m.Services[service].Patterns[i] = merged
		}); err != nil {
			return "", err
		}
		return merged.ID, nil
	}

	if p.ID == "" {
		p.ID = newID("pat")
	}
	p.FirstDetected = now
	p.LastConfirmed = now
	if p.Occurrences < 1 {
		p.Occurrences = 1
	}
	appended := append(svc.Patterns, p)
	if err := s.persistWith(func(m *models.Memory) {
		m.Services[service].Patterns = appended
	}); err != nil {
		return "", err
	}
	return p.ID, nil
}

// AddGlobalPattern appends a cross-service pattern.
func (s *Store) AddGlobalPattern(p models.Pattern) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = newID("gpat")
	}
	now := models.Now()
	p.FirstDetected = now
	p.LastConfirmed = now
	if p.Occurrences < 1 {
		p.Occurrences = 1
	}
	appended := append(s.mem.GlobalPatterns, p)
	if err := s.persistWith(func(m *models.Memory) {
		m.GlobalPatterns = appended
	}); err != nil {
		return "", err
	}
	return p.ID, nil
}

// PatternView is a pattern annotated with its owning service or global scope.
type PatternView struct {
	models.Pattern
	Service string `json:"service,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

// GetAllPatterns returns every pattern, per-service first, then global.
func (s *Store) GetAllPatterns() []PatternView {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PatternView
	for name, svc := range s.mem.Services {
		for _, p := range svc.Patterns {
			out = append(out, PatternView{Pattern: p, Service: name})
		}
	}
	for _, p := range s.mem.GlobalPatterns {
		out = append(out, PatternView{Pattern: p, Scope: "global"})
	}
	return out
}

// GetServiceMemory returns the baseline, patterns, and insights for one service.
func (s *Store) GetServiceMemory(service string) models.ServiceMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.mem.Services[service]
	if !ok {
		return models.ServiceMemory{
			BaselineMetrics: models.Baseline{},
			Patterns:        []models.Pattern{},
			Insights:        []models.Insight{},
		}
	}
	return *cloneService(svc)
}

// UpdateBaseline replaces the service's baseline and stamps measured_at.
func (s *Store) UpdateBaseline(service string, metrics models.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureService(service)
	b := models.Baseline{}
	for k, v := range metrics {
		b[k] = v
	}
	b["measured_at"] = models.Now()
	return s.persistWith(func(m *models.Memory) {
		m.Services[service].BaselineMetrics = b
	})
}

// RecordAnalysis appends a session to the history ring (last 100 kept).
func (s *Store) RecordAnalysis(sess models.AnalysisSession) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.SessionID == "" {
		sess.SessionID = newID("sess")
	}
	if sess.Timestamp == "" {
		sess.Timestamp = models.Now()
	}
	hist := append(s.mem.AnalysisHistory, sess)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	if err := s.persistWith(func(m *models.Memory) {
		m.AnalysisHistory = hist
	}); err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

// AnalysisHistory returns up to limit most recent sessions, newest first.
func (s *Store) AnalysisHistory(limit int) []models.AnalysisSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.mem.AnalysisHistory)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AnalysisSession, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.mem.AnalysisHistory[i])
	}
	return out
}

// GetRecommendations returns open high/critical insights that carry a
// non-empty recommendation, newest first.
func (s *Store) GetRecommendations() []models.Insight {
	all := s.GetAllInsights(models.StatusOpen)
	var out []models.Insight
	for _, ins := range all {
		if ins.Recommendation == "" {
			continue
		}
		if ins.Severity == models.SeverityHigh || ins.Severity == models.SeverityCritical {
			out = append(out, ins)
		}
	}
	return out
}

// ServiceNames returns the services the store currently knows about.
func (s *Store) ServiceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.mem.Services))
	for name := range s.mem.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ensureService must be called with the lock held.
func (s *Store) ensureService(name string) *models.ServiceMemory {
	svc, ok := s.mem.Services[name]
	if !ok {
		svc = &models.ServiceMemory{
			BaselineMetrics: models.Baseline{},
			Patterns:        []models.Pattern{},
			Insights:        []models.Insight{},
		}
		s.mem.Services[name] = svc
	}
	return svc
}

// persistWith applies mutate to a copy of the document, writes the copy to
// disk atomically, and only then installs it in memory. A failed write leaves
// the in-memory state untouched. Must be called with the lock held.
func (s *Store) persistWith(mutate func(*models.Memory)) error {
	next := cloneMemory(s.mem)
	mutate(next)
	next.LastUpdated = models.Now()

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return errs.E(errs.KindStorage, "memory.persist", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.E(errs.KindStorage, "memory.persist", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.E(errs.KindStorage, "memory.persist", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errs.E(errs.KindStorage, "memory.persist", err)
	}
	s.mem = next
	return nil
}

func cloneMemory(m *models.Memory) *models.Memory {
	out := &models.Memory{
		Version:         m.Version,
		LastUpdated:     m.LastUpdated,
		Services:        make(map[string]*models.ServiceMemory, len(m.Services)),
		GlobalPatterns:  append([]models.Pattern(nil), m.GlobalPatterns...),
		AnalysisHistory: append([]models.AnalysisSession(nil), m.AnalysisHistory...),
	}
	for name, svc := range m.Services {
		out.Services[name] = cloneService(svc)
	}
	return out
}

func cloneService(svc *models.ServiceMemory) *models.ServiceMemory {
	b := models.Baseline{}
	for k, v := range svc.BaselineMetrics {
		b[k] = v
	}
	return &models.ServiceMemory{
		BaselineMetrics: b,
		Patterns:        append([]models.Pattern(nil), svc.Patterns...),
		Insights:        append([]models.Insight(nil), svc.Insights...),
	}
}

// similar reports whether two pattern descriptions describe the same thing:
// equal 40-char prefixes (case-insensitive) or word-set Jaccard overlap
// above the threshold.
func similar(a, b string) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return la == lb
	}
	if prefix(la, SimilarPrefixLen) == prefix(lb, SimilarPrefixLen) {
		return true
	}
	wa, wb := wordSet(la), wordSet(lb)
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return false
	}
	return float64(inter)/float64(union) > SimilarJaccardThreshold
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

func min99(v float64) float64 {
	if v > 0.99 {
		return 0.99
	}
	return v
}

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
