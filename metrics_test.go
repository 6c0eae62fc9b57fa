package revolt

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMetrics(t *testing.T) {
	ctx := context.Background()
	ft := newFakeTransport()
	ft.addUsers("owner", "a")
	ft.addChannel(groupPayload("g1", "owner", "a"))
	c, _ := newTestClient(t, ft, WithMetrics(prometheus.NewRegistry()))

	ch, err := c.FetchChannel(ctx, "g1")
	require.NoError(t, err)
	_, err = c.FetchChannel(ctx, "g1")
	require.NoError(t, err)
	_, err = ch.UpsertMessage(ctx, APIMessage{ID: "m1", Author: "a"})
	require.NoError(t, err)

	m := c.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues(entityChannel, "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues(entityChannel, "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entities.WithLabelValues(entityChannel)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entities.WithLabelValues(entityUser)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(EventChannelCreate))))

	require.NoError(t, ch.Delete(ctx, true))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.entities.WithLabelValues(entityChannel)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.entities.WithLabelValues(entityMessage)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *cacheMetrics
	assert.NotPanics(t, func() {
		m.hit(entityChannel)
		m.miss(entityChannel)
		m.setEntities(entityUser, 3)
		m.emitted(EventMessage)
		m.packet("Ready")
	})
}
