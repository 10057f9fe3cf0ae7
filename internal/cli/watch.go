package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/histsess/internal/config"
	"github.com/roach88/histsess/internal/correlate"
	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database string
	Start    string
	For      time.Duration
	Interval time.Duration
}

// WatchUpdate is one value delivered by the subscription.
type WatchUpdate struct {
	Delivery int        `json:"delivery"`
	Item     hda.ItemID `json:"item"`
	Value    *hda.Value `json:"value,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <item>...",
		Short: "Subscribe to new raw values of items",
		Long: `Subscribe to raw values of the given items from --start onwards and
print every value as it arrives. The subscription runs until --for
elapses or the process receives an interrupt, then it is cancelled.

When metrics are enabled in the config file, correlation metrics are
served on the configured address while the watch runs.

Examples:
  histsess watch --db ./plant.db --for 30s plant.unit1.temp
  histsess watch --db ./plant.db --start HOUR --format json plant.unit1.flow`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config database)")
	cmd.Flags().StringVar(&opts.Start, "start", "NOW", "first time of interest")
	cmd.Flags().DurationVar(&opts.For, "for", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "update interval requested from the server (defaults to the config)")

	return cmd
}

func runWatch(opts *WatchOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	start, err := reltime.Parse(opts.Start)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --start", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.For > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.For)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping watch", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var eo envOptions
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		eo.metrics = correlate.NewMetrics(reg)
		stopMetrics := serveMetrics(cfg.Metrics, reg)
		defer stopMetrics()
	}

	e, err := openEnv(ctx, cfg, opts.Database, eo)
	if err != nil {
		return err
	}
	defer e.close(ctx)

	w := newUpdateWriter(cmd, opts.Format)
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Duration(cfg.Server.AdviseInterval)
	}

	req, err := e.session.AdviseRaw(ctx, itemsOf(args), start, interval, nil, w.handle)
	if err != nil {
		return opts.formatter(cmd).Fail("E_SUBSCRIBE", ExitFailure, "subscribe failed", err)
	}
	for _, it := range req.Items {
		if it.Err != nil {
			w.reject(it.Item.ID, it.Err)
		}
	}
	if req.Accepted() == 0 {
		return NewExitError(ExitFailure, "no item accepted")
	}

	slog.Info("watching", "session_id", e.session.ID(), "request_id", req.ID, "items", req.Accepted())
	<-ctx.Done()

	if err := e.session.Cancel(context.WithoutCancel(ctx), req, nil); err != nil && !errors.Is(err, correlate.ErrUnknownTransaction) {
		slog.Warn("cancel failed", "request_id", req.ID, "error", err)
	}
	slog.Info("watch stopped", "deliveries", w.deliveries())
	return nil
}

// updateWriter prints subscription deliveries. Handlers run on the server's
// callback goroutine while rejections print from the caller, so writes are
// serialized.
type updateWriter struct {
	mu     sync.Mutex
	cmd    *cobra.Command
	asJSON bool
	count  int
}

func newUpdateWriter(cmd *cobra.Command, format string) *updateWriter {
	return &updateWriter{cmd: cmd, asJSON: format == "json"}
}

func (u *updateWriter) handle(res *correlate.Result) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.count++
	if res.Err != nil {
		u.emit(WatchUpdate{Delivery: u.count, Error: res.Err.Error()})
		return nil
	}
	for _, ir := range res.Items {
		if ir.Err != nil {
			u.emit(WatchUpdate{Delivery: u.count, Item: ir.Item.ID, Error: ir.Err.Error()})
			continue
		}
		for i := range ir.Values {
			u.emit(WatchUpdate{Delivery: u.count, Item: ir.Item.ID, Value: &ir.Values[i]})
		}
	}
	return nil
}

func (u *updateWriter) reject(id hda.ItemID, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.emit(WatchUpdate{Item: id, Error: err.Error()})
}

func (u *updateWriter) emit(up WatchUpdate) {
	w := u.cmd.OutOrStdout()
	if u.asJSON {
		_ = json.NewEncoder(w).Encode(up)
		return
	}
	switch {
	case up.Error != "" && up.Item == "":
		fmt.Fprintf(w, "#%d error: %s\n", up.Delivery, up.Error)
	case up.Error != "":
		fmt.Fprintf(w, "%s: %s\n", up.Item, up.Error)
	default:
		fmt.Fprintf(w, "#%d %s %s %g %s\n", up.Delivery, up.Item,
			up.Value.Timestamp.UTC().Format(time.RFC3339Nano), up.Value.Data, up.Value.Quality)
	}
}

func (u *updateWriter) deliveries() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// serveMetrics exposes reg on cfg.Addr until the returned func is called.
func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", cfg.Addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", cfg.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
