package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanderheijden86/aios/internal/datasource"
	"github.com/vanderheijden86/aios/internal/store"
	"github.com/vanderheijden86/aios/pkg/analytics"
	"github.com/vanderheijden86/aios/pkg/analytics/transport"
	"github.com/vanderheijden86/aios/pkg/config"
	"github.com/vanderheijden86/aios/pkg/debug"
	"github.com/vanderheijden86/aios/pkg/loader"
	"github.com/vanderheijden86/aios/pkg/logging"
	"github.com/vanderheijden86/aios/pkg/metrics"
	"github.com/vanderheijden86/aios/pkg/model"
	"github.com/vanderheijden86/aios/pkg/recommend"
	"github.com/vanderheijden86/aios/pkg/version"
	"github.com/vanderheijden86/aios/pkg/watcher"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	jsonOut    bool
	serve      bool
	flush      bool
	logEvent   string
	recommend  bool
	list       bool
	accept     string
	decline    string
	history    int
	stats      bool
	privacy    string
	importPath string
	version    bool
	args       []string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("aios", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", config.ConfigPath(), "Path to the config file")
	fs.BoolVar(&o.jsonOut, "json", false, "Print machine-readable JSON")
	fs.BoolVar(&o.serve, "serve", false, "Run the flush loop and watch the config file until interrupted")
	fs.BoolVar(&o.flush, "flush", false, "Deliver one batch of queued events")
	fs.StringVar(&o.logEvent, "log", "", "Log an event; trailing key=value arguments become properties")
	fs.BoolVar(&o.recommend, "recommend", false, "Run the recommendation engine once")
	fs.BoolVar(&o.list, "list", false, "List active recommendations")
	fs.StringVar(&o.accept, "accept", "", "Accept the recommendation with this id")
	fs.StringVar(&o.decline, "decline", "", "Decline the recommendation with this id")
	fs.IntVar(&o.history, "history", 0, "Show the last n resolved recommendations")
	fs.BoolVar(&o.stats, "stats", false, "Show pipeline and recommendation statistics")
	fs.StringVar(&o.privacy, "privacy", "", "Switch privacy mode: on|off")
	fs.StringVar(&o.importPath, "import", "", "Replace notes, tasks and calendar events with a JSONL export")
	fs.BoolVar(&o.version, "version", false, "Show version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: aios [options] [key=value ...]")
		fmt.Fprintln(stderr, "\nPrivacy-aware telemetry pipeline and Command Center recommendations.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.args = fs.Args()
	if o.privacy != "" && o.privacy != "on" && o.privacy != "off" {
		return o, fmt.Errorf("-privacy must be on or off, got %q", o.privacy)
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if o.version {
		fmt.Fprintf(stdout, "aios %s\n", version.Version)
		return 0
	}

	a, err := newApp(ctx, o, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	if err := a.dispatch(ctx, o); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app holds the wired components for one invocation.
type app struct {
	cfg     config.Config
	cfgPath string
	logger  zerolog.Logger
	st      store.Store
	client  *analytics.Client
	recs    *recommend.Store
	engine  *recommend.Engine
	out     *printer
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.ApplyEnv(os.LookupEnv)
}

func newApp(ctx context.Context, o options, stdout, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsDevelopment() {
		debug.SetEnabled(true)
	}

	logger := logging.New("aios", cfg.Env, stderr)
	if !cfg.IsDevelopment() && !o.serve {
		logger = logger.Level(zerolog.WarnLevel)
	}
	if _, err := metrics.RegisterOTel(nil); err != nil {
		logger.Warn().Err(err).Msg("registering metrics")
	}

	st, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		Redis: store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	modules := model.DefaultModules()
	clientOpts := []analytics.Option{
		analytics.WithLogger(logging.Component(logger, "analytics")),
		analytics.WithModules(modules),
	}
	if cfg.Analytics.Endpoint != "" {
		sender := transport.NewHTTPSender(cfg.Analytics.Endpoint,
			transport.WithTimeout(cfg.Analytics.RequestTimeout),
			transport.WithLogger(logging.Component(logger, "transport")),
		)
		clientOpts = append(clientOpts, analytics.WithSender(sender))
	}
	client := analytics.New(st, analytics.ConfigFrom(cfg.Analytics), clientOpts...)
	if err := client.Initialize(ctx); err != nil {
		logger.Warn().Err(err).Msg("analytics initialized with partial state")
	}

	recLogger := logging.Component(logger, "recommend")
	recs := recommend.NewStore(st,
		recommend.WithStoreLogger(recLogger),
		recommend.WithStoreTracker(client),
	)
	engine := recommend.NewEngine(
		datasource.NewStoreReader(st, datasource.WithLogger(logging.Component(logger, "datasource"))),
		recs,
		recommend.WithRules(recommend.DefaultRules(recommend.RuleConfigFrom(cfg.Recommend))...),
		recommend.WithMaxParallel(cfg.Recommend.MaxParallelRules),
		recommend.WithModules(modules),
		recommend.WithTracker(client),
		recommend.WithLogger(recLogger),
	)

	cfgPath := o.configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	return &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
		st:      st,
		client:  client,
		recs:    recs,
		engine:  engine,
		out:     newPrinter(stdout, o.jsonOut),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.client.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("closing analytics")
	}
	if err := a.st.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing store")
	}
}

func (a *app) dispatch(ctx context.Context, o options) error {
	switch {
	case o.serve:
		return a.serve(ctx)
	case o.importPath != "":
		return a.importData(ctx, o.importPath)
	case o.privacy != "":
		return a.setPrivacy(ctx, o.privacy == "on")
	case o.logEvent != "":
		return a.logEvent(ctx, model.EventName(o.logEvent), o.args)
	case o.flush:
		return a.flushOnce(ctx)
	case o.recommend:
		return a.runEngine(ctx)
	case o.list:
		return a.listActive(ctx)
	case o.accept != "":
		rec, err := a.recs.Accept(ctx, o.accept)
		if err != nil {
			return err
		}
		return a.out.resolved(rec)
	case o.decline != "":
		rec, err := a.recs.Decline(ctx, o.decline)
		if err != nil {
			return err
		}
		return a.out.resolved(rec)
	case o.history > 0:
		recs, err := a.recs.History(ctx, o.history)
		if err != nil {
			return err
		}
		return a.out.recommendations("History", recs)
	case o.stats:
		return a.showStats(ctx)
	}
	return a.listActive(ctx)
}

func (a *app) serve(ctx context.Context) error {
	if a.cfgPath == "" {
		a.logger.Warn().Msg("no config path, hot reload disabled")
		a.client.Start(ctx)
		<-ctx.Done()
		return nil
	}
	w, err := watcher.New(a.cfgPath, func(cfg config.Config) {
		a.client.SetEnabled(cfg.Analytics.IsEnabled())
	},
		watcher.WithLogger(logging.Component(a.logger, "watcher")),
		watcher.WithOnError(func(err error) {
			a.logger.Warn().Err(err).Msg("config watch")
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	a.client.Start(ctx)
	a.logger.Info().
		Str("config", a.cfgPath).
		Dur("flush_interval", a.cfg.Analytics.FlushInterval).
		Bool("enabled", a.client.Enabled()).
		Msg("serving")

	<-ctx.Done()
	a.logger.Info().Msg("shutting down")
	return nil
}

func (a *app) importData(ctx context.Context, path string) error {
	snap, stats, err := loader.LoadSnapshotFromFile(path, loader.ParseOptions{
		WarningHandler: func(msg string) {
			a.logger.Warn().Str("file", path).Msg(msg)
		},
	})
	if err != nil {
		return err
	}
	if err := datasource.Save(ctx, a.st, snap); err != nil {
		return err
	}
	return a.out.imported(stats)
}

func (a *app) setPrivacy(ctx context.Context, on bool) error {
	var err error
	if on {
		err = a.client.EnablePrivacyMode(ctx)
	} else {
		err = a.client.DisablePrivacyMode(ctx)
	}
	if err != nil {
		return err
	}
	return a.out.privacy(a.client.IsPrivacyModeEnabled())
}

func (a *app) logEvent(ctx context.Context, name model.EventName, args []string) error {
	props, err := parseProps(args)
	if err != nil {
		return err
	}
	before := a.client.Stats()
	a.client.Log(ctx, name, props)
	after := a.client.Stats()
	if after.Logged == before.Logged {
		return fmt.Errorf("event %q was dropped", name)
	}
	return a.out.queued(name, after.Queued)
}

// parseProps turns key=value arguments into raw properties. Integers and
// booleans are typed; everything else stays a string.
func parseProps(args []string) (map[string]any, error) {
	props := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", arg)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			props[k] = n
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			props[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			props[k] = b
		} else {
			props[k] = v
		}
	}
	return props, nil
}

func (a *app) flushOnce(ctx context.Context) error {
	rep, err := a.client.Flush(ctx)
	if err != nil {
		return err
	}
	return a.out.flush(rep)
}

func (a *app) runEngine(ctx context.Context) error {
	res := a.engine.Run(ctx)
	if res.Err != nil {
		return res.Err
	}
	return a.out.run(res)
}

func (a *app) listActive(ctx context.Context) error {
	recs, err := a.recs.Active(ctx)
	if err != nil {
		return err
	}
	return a.out.recommendations("Active recommendations", recs)
}

func (a *app) showStats(ctx context.Context) error {
	recStats, err := a.recs.Statistics(ctx)
	if err != nil {
		return err
	}
	return a.out.stats(a.client.Stats(), recStats)
}
