package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"rtwork/config"
	"rtwork/debug"
	"rtwork/metrics"
	"rtwork/utils"
	"rtwork/work"
	"rtwork/workers/digest"
	"rtwork/workers/journal"
)

func newRunCmd(loadFn func() (config.Config, error)) *cobra.Command {
	var cycles int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler under a simulated realtime cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFn()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics") {
				cfg.MetricsAddr = metricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cycles, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 0, "Stop after n cycles (0 runs until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve /metrics on this address")
	return cmd
}

// summary is printed as JSON when run returns.
type summary struct {
	Cycles    int                 `json:"cycles"`
	Scheduler work.SchedulerStats `json:"scheduler"`
	Workers   []work.WorkerStats  `json:"workers"`
	Digests   uint64              `json:"digests"`
	LastRow   int64               `json:"journal_last_row"`
	Rows      int64               `json:"journal_rows"`
}

// run wires the scheduler, both workers and the metrics endpoint, then drives
// the realtime cycle until ctx is done or cycles have elapsed.
func run(ctx context.Context, cfg config.Config, cycles int, out io.Writer) error {
	s, err := work.NewScheduler(cfg.Scheduler())
	if err != nil {
		return err
	}
	defer s.Close()
	return drive(ctx, s, cfg, cycles, out)
}

// drive registers the workers on s, runs the cycle and prints the summary.
// Every worker it registers is closed before it returns, on error paths too.
func drive(ctx context.Context, s *work.Scheduler, cfg config.Config, cycles int, out io.Writer) error {
	dw, jw, err := openWorkers(s, cfg)
	if err != nil {
		return err
	}
	// Scheduler Close runs after these, so the workers are idle by then
	defer closeWorker("JOURNAL_CLOSE", jw)
	defer closeWorker("DIGEST_CLOSE", dw)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, s)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := s.Start(); err != nil {
		return err
	}
	debug.DropMessage("READY", cfg.Name+" id="+s.ID().String())

	n := realtimeLoop(ctx, time.Duration(cfg.CycleInterval), cycles, dw, jw)

	if err := s.Stop(); err != nil {
		return err
	}
	// Deliver whatever finished before the stop
	dw.ProcessWorkResponses()
	jw.ProcessWorkResponses()

	rows, err := jw.Rows(context.Background())
	if err != nil {
		return fmt.Errorf("journal: count rows: %w", err)
	}
	sum := summary{
		Cycles:    n,
		Scheduler: s.Stats(),
		Workers:   s.WorkerStats(),
		Digests:   dw.Count(),
		LastRow:   jw.LastRow(),
		Rows:      rows,
	}

	enc, err := sonnet.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(enc))
	debug.DropMessage("STOPPED", utils.Itoa(n)+" cycles")
	return nil
}

// openWorkers registers the digest and journal workers. If the journal
// cannot be opened the digest worker is closed again before returning.
func openWorkers(s *work.Scheduler, cfg config.Config) (*digest.Worker, *journal.Worker, error) {
	dw, err := digest.New(s)
	if err != nil {
		return nil, nil, err
	}
	jw, err := journal.Open(s, cfg.JournalPath, cfg.ResponseCapacity)
	if err != nil {
		closeWorker("DIGEST_CLOSE", dw)
		return nil, nil, err
	}
	return dw, jw, nil
}

// closeWorker closes c and logs a failure.
func closeWorker(tag string, c io.Closer) {
	if err := c.Close(); err != nil {
		debug.DropError(tag, err)
	}
}

// realtimeLoop plays the audio callback: once per cycle, deliver responses
// and hand new work to any idle worker. Returns the number of cycles run.
func realtimeLoop(ctx context.Context, interval time.Duration, cycles int, dw *digest.Worker, jw *journal.Worker) int {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var block [64]byte
	var event [16]byte
	n := 0
	for cycles == 0 || n < cycles {
		select {
		case <-ctx.Done():
			return n
		case <-ticker.C:
		}
		n++

		dw.ProcessWorkResponses()
		jw.ProcessWorkResponses()

		binary.LittleEndian.PutUint64(block[:], uint64(n))
		dw.ScheduleWork(block[:])

		binary.LittleEndian.PutUint64(event[:], uint64(n))
		binary.LittleEndian.PutUint64(event[8:], uint64(time.Now().UnixNano()))
		jw.ScheduleWork(event[:])
	}
	return n
}

// serveMetrics exposes the scheduler collector and Go runtime metrics.
func serveMetrics(addr string, s *work.Scheduler) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(s),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		debug.DropMessage("METRICS", "listening on "+addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			debug.DropError("METRICS", err)
		}
	}()
	return srv
}
