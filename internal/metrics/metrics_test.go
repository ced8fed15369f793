package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RaidApplied("raidSuccess")
	m.RaidApplied("raidSuccess")
	m.EventRejected("invalid_selection")
	m.StorageFailed("save")
	m.ArchiveFailed()
	m.SubscriberDropped()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.ConnectionOpened("viewer")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.raidsApplied.WithLabelValues("raidSuccess")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsRejected.WithLabelValues("invalid_selection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageFailures.WithLabelValues("save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archiveFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedSubscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("viewer")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RaidApplied("emptyRaid")
		m.EventRejected("x")
		m.StorageFailed("load")
		m.ArchiveFailed()
		m.SubscriberDropped()
		m.SessionOpened()
		m.SessionClosed()
		m.ConnectionOpened("scorer")
		m.ConnectionClosed("scorer")
	})
}
