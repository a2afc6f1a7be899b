package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFQNameJoinsNamespaceSubsystemName(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	fq, err := p.buildFQName(CommonOpts{Namespace: "presentmon", Subsystem: "query", Name: "polls_total"})
	require.NoError(t, err)
	require.Equal(t, "presentmon_query_polls_total", fq)
}

func TestBuildFQNameRejectsEmptyName(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	_, err := p.buildFQName(CommonOpts{})
	require.Error(t, err)
}

func TestCounterIncSkipsNonPositiveDelta(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{CardinalityLimit: 10})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "presentmon", Name: "test_total", Labels: []string{"swap_chain"}}})
	c.Inc(0, "0xcafe")
	require.Equal(t, 0, p.CardinalityOf("presentmon_test_total"), "a zero delta must not register cardinality")
	c.Inc(1, "0xcafe")
	require.Equal(t, 1, p.CardinalityOf("presentmon_test_total"))
}

// TestCardinalityExceededInvokesHookOnce matches the swap-chain-address
// label growth this service actually sees (spec.md §4.4): once a metric's
// distinct label tuples cross the limit, the hook fires exactly once, not
// once per subsequent observation.
func TestCardinalityExceededInvokesHookOnce(t *testing.T) {
	var fired []string
	p := NewPrometheusProvider(PrometheusProviderOptions{
		CardinalityLimit: 2,
		OnCardinalityExceeded: func(metric string, limit int) {
			fired = append(fired, metric)
		},
	})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "presentmon", Name: "swapchain_frames_total", Labels: []string{"swap_chain"}}})
	c.Inc(1, "0xcafe1")
	c.Inc(1, "0xcafe2")
	c.Inc(1, "0xcafe3")
	c.Inc(1, "0xcafe4")
	require.Equal(t, []string{"presentmon_swapchain_frames_total"}, fired)
}

func TestCardinalityExceededNeverFiresUnderLimit(t *testing.T) {
	var fired bool
	p := NewPrometheusProvider(PrometheusProviderOptions{
		CardinalityLimit: 10,
		OnCardinalityExceeded: func(metric string, limit int) {
			fired = true
		},
	})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "presentmon", Name: "swapchain_frames_total", Labels: []string{"swap_chain"}}})
	c.Inc(1, "0xcafe1")
	c.Inc(1, "0xcafe2")
	require.False(t, fired)
}

func TestHealthReportsLastProblem(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	require.NoError(t, p.Health(nil))
	_, err := p.buildFQName(CommonOpts{Name: "not a valid name"})
	require.Error(t, err)
	p.recordProblem(err)
	require.Error(t, p.Health(nil))
}
