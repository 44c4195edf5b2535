// Command mdb loads, edits, reconciles and exports a mouse colony snapshot.
// Configuration comes from MDB_* environment variables; see internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mousedb/internal/audit"
	"mousedb/internal/blob"
	"mousedb/internal/config"
	"mousedb/internal/core"
	"mousedb/internal/infra/logging"
	"mousedb/pkg/domain"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var (
	exitFunc = os.Exit
	getenv   = os.Getenv
	now      = time.Now
)

type command struct {
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = map[string]command{
	"import":    {"import rows from a JSON file and store them as the snapshot", runImport},
	"diff":      {"compare two JSON row files and print the change set", runDiff},
	"move":      {"apply ID=TARGET transitions and save", runMove},
	"add":       {"create an animal and place it in a cage", runAdd},
	"export":    {"write the retained snapshot as JSON rows", runExport},
	"changelog": {"list archived changelogs or apply one and save", runChangelog},
	"counts":    {"print genotype counts of a category", runCounts},
}

// errUsage marks flag errors already reported by the flag set.
var errUsage = errors.New("usage")

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mdb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var metricsPath, tracePath string
	fs.StringVar(&metricsPath, "metrics", "", "write Prometheus metrics in text format to this file after the command")
	fs.StringVar(&tracePath, "trace", "", "write one JSON line per session operation to this file")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(getenv)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	a := newApp(cfg, stdout, stderr)
	defer func() { _ = a.logger.Sync() }()
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "trace: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		a.tracer = core.NewJSONTracer(f)
	}

	ctx := context.Background()
	err = cmd.run(ctx, a, rest[1:])
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if metricsPath != "" {
		if mErr := a.writeMetrics(metricsPath); mErr != nil && err == nil {
			err = mErr
		}
	}
	vars := a.vars.Snapshot()
	a.logger.Debug("session operations", "expvar", a.vars.Name(), "calls", vars.Calls, "duration_ms", vars.DurationsMS)
	switch {
	case errors.Is(err, errUsage):
		if err != errUsage {
			_, _ = fmt.Fprintf(stderr, "mdb %s: %v\n", rest[0], err)
		}
		return 2
	case err != nil:
		_, _ = fmt.Fprintf(stderr, "mdb %s: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("usage: mdb [-metrics file] [-trace file] <command> [flags]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-10s %s\n", name, commands[name].summary)
	}
	_, _ = io.WriteString(w, b.String())
}

// app carries the collaborators shared by every command.
type app struct {
	cfg      config.Config
	stdout   io.Writer
	stderr   io.Writer
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *core.PrometheusMetricsRecorder
	vars     *core.ExpvarMetricsRecorder
	tracer   core.Tracer
	view     domain.Category
	closers  []io.Closer
}

func newApp(cfg config.Config, stdout, stderr io.Writer) *app {
	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		stdout:   stdout,
		stderr:   stderr,
		logger:   logging.NewWriter(stderr, cfg.Log.Level, cfg.Log.Format, "mdb"),
		registry: reg,
		metrics:  core.NewPrometheusMetricsRecorder(cfg.MetricsNamespace, reg),
		vars:     core.NewExpvarMetricsRecorder(""),
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) writeMetrics(path string) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

func (a *app) store(ctx context.Context) (domain.SnapshotStore, error) {
	store, err := core.OpenSnapshotStore(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return store, nil
}

func (a *app) archive(ctx context.Context) (*audit.Archive, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return audit.NewArchive(store, a.cfg.ArchivePrefix), nil
}

func (a *app) options(store domain.SnapshotStore, archive core.ChangeArchive) []core.Option {
	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{a.metrics, a.vars}),
		core.WithTracer(a.tracer),
		core.WithView(a.view),
		core.WithClock(core.ClockFunc(now)),
		core.WithClassifier(a.cfg.Classifier()),
		core.WithIssuerConfig(a.cfg.IssuerConfig()),
		core.WithRetention(a.cfg.Retention),
		core.WithStore(store),
	}
	if archive != nil {
		opts = append(opts, core.WithArchive(archive))
	}
	return opts
}

// session opens the stored snapshot with the full collaborator set.
func (a *app) session(ctx context.Context) (*core.Session, *audit.Archive, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, nil, err
	}
	archive, err := a.archive(ctx)
	if err != nil {
		return nil, nil, err
	}
	s := core.NewSession(a.options(store, archive)...)
	if err := s.OpenStore(ctx); err != nil {
		return nil, nil, err
	}
	return s, archive, nil
}
