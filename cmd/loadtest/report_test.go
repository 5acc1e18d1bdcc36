package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestCollector_SnapshotAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioSeries, 10*time.Millisecond, codes.OK)
	c.record(scenarioSeries, 20*time.Millisecond, codes.Internal)
	c.record("ConfirmSale", 15*time.Millisecond, codes.OK)

	snap, ok := c.snapshot(scenarioSeries)
	require.True(t, ok)
	require.Equal(t, int64(2), snap.Calls)
	require.Equal(t, int64(1), snap.Success)
	require.Equal(t, int64(1), snap.Failed)
	require.Equal(t, map[string]int64{"OK": 1, "Internal": 1}, snap.Codes)
	require.InDelta(t, 0.5, snap.ErrorRate, 1e-9)

	_, ok = c.snapshot("GetQuote")
	require.False(t, ok)

	r := c.buildReport(time.Now(), 2*time.Second)
	require.Equal(t, int64(2), r.TotalScenarios)
	require.Equal(t, int64(1), r.FailedScenarios)
	require.InDelta(t, 1.0, r.RPS, 1e-9)
	require.InDelta(t, 20.0, r.ScenarioLatencyMs.Max, 1e-9)
	require.Contains(t, r.Methods, "ConfirmSale")
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{40, 10, 30, 20})

	require.InDelta(t, 10.0, summary.Min, 1e-9)
	require.InDelta(t, 40.0, summary.Max, 1e-9)
	require.InDelta(t, 25.0, summary.Avg, 1e-9)
	require.InDelta(t, 25.0, summary.P50, 1e-9)
	require.InDelta(t, 38.5, summary.P95, 1e-9)

	require.Equal(t, latencySummary{}, buildLatencySummary(nil))
}

func TestPercentileAndRatio(t *testing.T) {
	require.Zero(t, percentile(nil, 95))
	require.InDelta(t, 7.0, percentile([]float64{7}, 99), 1e-9)
	require.InDelta(t, 30.0, percentile([]float64{10, 20, 30}, 100), 1e-9)

	require.InDelta(t, 0.25, ratio(1, 4), 1e-9)
	require.Zero(t, ratio(1, 0))
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, writeJSONReport(path, report{TotalScenarios: 2, SuccessScenarios: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, int64(2), decoded.TotalScenarios)
	require.Equal(t, int64(2), decoded.SuccessScenarios)
}

func TestWriteJSONReport_RejectsPaths(t *testing.T) {
	require.ErrorContains(t, writeJSONReport(".", report{}), "must point to a file")
	require.ErrorContains(t, writeJSONReport("../escape.json", report{}), "inside current directory")
}

func TestWriteReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			scenarioSeries: {Calls: 2, Success: 2},
			"ConfirmSale":  {Calls: 2, Success: 2},
			"CancelSale":   {Calls: 1, Failed: 1, ErrorRate: 1},
		},
	}

	var buf bytes.Buffer
	writeReport(&buf, r, config{mode: modeConfirm, total: 2, quoteFrom: 1, quoteTo: 2})
	out := buf.String()

	require.Contains(t, out, "Load test summary")
	require.Contains(t, out, "mode=confirm run=count:2 quotes=1..2")
	require.Contains(t, out, "ConfirmSale")
	require.NotContains(t, out, "\nscenario  ", "scenario row belongs to the summary, not the method table")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("CancelSale")), bytes.Index(buf.Bytes(), []byte("ConfirmSale")))
}
