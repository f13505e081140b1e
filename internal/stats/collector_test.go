package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorEmitsOneTotalAndRatePerCounter(t *testing.T) {
	now := time.Now()
	w := NewWindow()
	w.Record("meta.messagesSent", now, 7)

	c := NewCollector(w, func() time.Time { return now })

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	var sawTotal, sawRate bool
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if mf.GetName() == "meshnode_stat_total" {
				sawTotal = true
				assert.Equal(t, float64(7), m.GetCounter().GetValue())
			}
			if mf.GetName() == "meshnode_stat_rate_per_second" {
				sawRate = true
			}
			for _, l := range m.GetLabel() {
				if l.GetName() == "name" {
					assert.Equal(t, "meta.messagesSent", l.GetValue())
				}
			}
		}
	}
	assert.True(t, sawTotal)
	assert.True(t, sawRate)
}
