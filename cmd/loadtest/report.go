package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc/codes"
)

// scenarioSeries — серия, куда пишется время сценария целиком.
const scenarioSeries = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// series накапливает вызовы одного RPC (или сценария).
type series struct {
	byCode    map[codes.Code]int64
	latencyMs []float64
}

func (s *series) add(latency time.Duration, code codes.Code) {
	s.byCode[code]++
	s.latencyMs = append(s.latencyMs, float64(latency.Microseconds())/1000)
}

func (s *series) report() methodReport {
	out := methodReport{Codes: make(map[string]int64, len(s.byCode))}
	for code, n := range s.byCode {
		out.Calls += n
		if code == codes.OK {
			out.Success += n
		}
		out.Codes[code.String()] = n
	}
	out.Failed = out.Calls - out.Success
	out.ErrorRate = ratio(out.Failed, out.Calls)
	out.LatencyMs = buildLatencySummary(s.latencyMs)
	return out
}

// collector безопасен для одновременной записи из воркеров.
type collector struct {
	mu     sync.Mutex
	series map[string]*series
}

func newCollector() *collector {
	return &collector{series: make(map[string]*series)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.series[method]
	if s == nil {
		s = &series{byCode: make(map[codes.Code]int64)}
		c.series[method] = s
	}
	s.add(latency, code)
}

func (c *collector) snapshot(method string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.series[method]
	if !ok {
		return methodReport{}, false
	}
	return s.report(), true
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodReport, len(c.series)),
	}
	for method, s := range c.series {
		out.Methods[method] = s.report()
	}

	if scenarios, ok := out.Methods[scenarioSeries]; ok {
		out.TotalScenarios = scenarios.Calls
		out.SuccessScenarios = scenarios.Success
		out.FailedScenarios = scenarios.Failed
		out.ErrorRate = scenarios.ErrorRate
		out.ScenarioLatencyMs = scenarios.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует линейно между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	// #nosec G306 -- отчёт нагрузочного прогона не содержит секретов.
	return os.WriteFile(clean, append(body, '\n'), 0o644)
}

func printReport(result report, cfg config) {
	writeReport(os.Stdout, result, cfg)
}

func writeReport(w io.Writer, result report, cfg config) {
	lat := result.ScenarioLatencyMs
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s quotes=%d..%d total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), cfg.quoteFrom, cfg.quoteTo,
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	methods := slices.Sorted(maps.Keys(result.Methods))
	methods = slices.DeleteFunc(methods, func(name string) bool { return name == scenarioSeries })
	if len(methods) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "method\tcalls\tsuccess\tfailed\terror_rate\tp95_ms")
	for _, name := range methods {
		m := result.Methods[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.4f\t%.2f\n", name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
	_ = tw.Flush()
}
