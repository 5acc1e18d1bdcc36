package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/orcamentos/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	defaultNotes      = "loadtest"
)

type loadMode string

const (
	modeGet           loadMode = "get"
	modeConfirm       loadMode = "confirm"
	modeConfirmCancel loadMode = "confirm-cancel"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	quoteFrom   int64
	quoteTo     int64
	notes       string
	outputPath  string
}

func parseConfig() (config, error) {
	cfg := config{}
	var mode string

	fs := flag.CommandLine
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration only an upper bound when set explicitly")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of a fixed count (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC client connections shared by workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeGet), "scenario: get | confirm | confirm-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of confirm scenarios followed by CancelSale (0..100)")
	fs.Int64Var(&cfg.quoteFrom, "quote-from", 1, "first quote id of the seeded range")
	fs.Int64Var(&cfg.quoteTo, "quote-to", 100, "last quote id of the seeded range")
	fs.StringVar(&cfg.notes, "notes", defaultNotes, "observacoes sent with confirm and cancel calls")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case c.duration < 0:
		return errors.New("duration must be >= 0")
	case c.duration == 0 && c.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case c.duration > 0 && c.totalSet && c.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case c.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.connections <= 0:
		return errors.New("connections must be > 0")
	case c.timeout <= 0:
		return errors.New("timeout must be > 0")
	case c.cancelRate < 0 || c.cancelRate > 100:
		return errors.New("cancel-rate must be between 0 and 100")
	case c.quoteFrom <= 0 || c.quoteTo < c.quoteFrom:
		return errors.New("quote range must satisfy 0 < quote-from <= quote-to")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	mode := loadMode(strings.TrimSpace(value))
	switch mode {
	case modeGet, modeConfirm, modeConfirmCancel:
		return mode, nil
	}
	return "", fmt.Errorf("unsupported mode: %s", value)
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		exitf("invalid config: %v", err)
	}

	result, err := run(cfg)
	if err != nil {
		exitf("%v", err)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			exitf("failed to write report: %v", err)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run раздаёт сценарии воркерам поверх пула соединений и собирает отчёт.
func run(cfg config) (report, error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	clients := make([]grpcsvc.SaleLifecycleClient, cfg.connections)
	for i := range clients {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		clients[i] = grpcsvc.NewSaleLifecycleClient(conn)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var (
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	for w := 0; w < cfg.concurrency; w++ {
		client := clients[w%len(clients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if err := runScenario(client, cfg, index, runID, col); err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures.Load() > 0 {
		result.FailedScenarios = failures.Load()
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result, nil
}

func exitf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// quoteForScenario распределяет сценарии по диапазону смет по кругу.
func quoteForScenario(cfg config, index int) int64 {
	span := cfg.quoteTo - cfg.quoteFrom + 1
	return cfg.quoteFrom + int64(index)%span
}

func runScenario(
	client grpcsvc.SaleLifecycleClient,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioSeries, time.Since(scenarioStart), scenarioCode)
	}()

	quoteID := quoteForScenario(cfg, index)

	if cfg.mode == modeGet {
		if err := callGetQuote(client, cfg.timeout, quoteID, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
		return nil
	}

	confirmKey := fmt.Sprintf("lt-confirm-%s-%d", runID, index)
	saleID, err := callConfirmSale(client, cfg.timeout, quoteID, cfg.notes, confirmKey, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}
	if saleID <= 0 {
		scenarioCode = codes.Internal
		return errors.New("confirm response returned empty sale id")
	}

	if cfg.mode == modeConfirmCancel || (cfg.mode == modeConfirm && shouldCancelScenario(index, cfg.cancelRate)) {
		cancelKey := fmt.Sprintf("lt-cancel-%s-%d", runID, index)
		if err := callCancelSale(client, cfg.timeout, saleID, cfg.notes, cancelKey, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}

	return nil
}

func callGetQuote(
	client grpcsvc.SaleLifecycleClient,
	timeout time.Duration,
	quoteID int64,
	col *collector,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := client.GetQuote(ctx, idRequest("orcamento_id", quoteID, ""))
	col.record("GetQuote", time.Since(start), grpcCode(err))
	return err
}

func callConfirmSale(
	client grpcsvc.SaleLifecycleClient,
	timeout time.Duration,
	quoteID int64,
	notes, key string,
	col *collector,
) (int64, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	resp, err := client.ConfirmSale(ctx, idRequest("orcamento_id", quoteID, notes))
	col.record("ConfirmSale", time.Since(start), grpcCode(err))
	if err != nil {
		return 0, err
	}
	return int64(resp.GetFields()["id"].GetNumberValue()), nil
}

func callCancelSale(
	client grpcsvc.SaleLifecycleClient,
	timeout time.Duration,
	saleID int64,
	notes, key string,
	col *collector,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	_, err := client.CancelSale(ctx, idRequest("venda_id", saleID, notes))
	col.record("CancelSale", time.Since(start), grpcCode(err))
	return err
}

func idRequest(field string, id int64, notes string) *structpb.Struct {
	fields := map[string]*structpb.Value{
		field: structpb.NewNumberValue(float64(id)),
	}
	if notes != "" {
		fields["observacoes"] = structpb.NewStringValue(notes)
	}
	return &structpb.Struct{Fields: fields}
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}
