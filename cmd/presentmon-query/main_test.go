package main

import (
	"testing"

	"github.com/99souls/presentmon/pkg/pmapi"
	"github.com/stretchr/testify/require"
)

func TestParseElements(t *testing.T) {
	elements, err := parseElements("frame_time=avg,gpu_fan_speed=max:2")
	require.NoError(t, err)
	require.Len(t, elements, 2)
	require.Equal(t, pmapi.MetricFrameTime, elements[0].Metric)
	require.Equal(t, pmapi.StatAvg, elements[0].Stat)
	require.Equal(t, pmapi.MetricGPUFanSpeed, elements[1].Metric)
	require.Equal(t, pmapi.StatMax, elements[1].Stat)
	require.Equal(t, uint32(2), elements[1].ArrayIndex)
}

func TestParseElementsRejectsUnknownMetric(t *testing.T) {
	_, err := parseElements("not_a_metric=avg")
	require.Error(t, err)
}

func TestParseElementsRejectsUnknownStat(t *testing.T) {
	_, err := parseElements("frame_time=not_a_stat")
	require.Error(t, err)
}

func TestParseElementsRejectsEmpty(t *testing.T) {
	_, err := parseElements("  ")
	require.Error(t, err)
}
