package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AssignsStableIDs(t *testing.T) {
	l := NewLog()

	id1 := l.Record(TypeScaleECS, "payment-service", StatusCompleted, "queue pressure", map[string]any{"desired_count": 4})
	id2 := l.Record(TypeRollbackDeploy, "payment-service", StatusFailed, "provider rejected", nil)

	require.Len(t, id1, 8)
	assert.NotEqual(t, id1, id2)

	recent := l.Recent(0)
	require.Len(t, recent, 2)
	// Newest first.
	assert.Equal(t, id2, recent[0].ID)
	assert.Equal(t, StatusFailed, recent[0].Status)
	assert.Equal(t, id1, recent[1].ID)
}

func TestRecent_Limit(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		l.Record(TypeUpdateParam, "api-gateway", StatusCompleted, "", nil)
	}
	assert.Len(t, l.Recent(3), 3)
	assert.Len(t, l.Recent(100), 5)
}

func TestClear(t *testing.T) {
	l := NewLog()
	l.Record(TypeScaleECS, "svc", StatusCompleted, "", nil)
	l.Clear()
	assert.Empty(t, l.Recent(0))
}
