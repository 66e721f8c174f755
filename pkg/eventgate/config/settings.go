package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/randalmurphal/eventgate/pkg/eventgate"
	"github.com/randalmurphal/eventgate/pkg/eventgate/loop"
	"github.com/randalmurphal/eventgate/pkg/eventgate/observability"
	"github.com/randalmurphal/eventgate/pkg/eventgate/store"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Settings is the typed runtime configuration of an eventgate host.
type Settings struct {
	// PendingLimit caps each dispatcher's pending queue. 0 means unbounded.
	PendingLimit int
	// LoopBacklogWarn logs a warning when the dispatch loop queue reaches
	// this many tasks. 0 disables it.
	LoopBacklogWarn int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// Metrics enables OpenTelemetry metrics through the global provider.
	Metrics bool
	// Tracing enables OpenTelemetry spans through the global provider.
	Tracing bool
	// Store selects where owner identities are recorded.
	Store StoreSettings
	// Samples paces the sample producers run by gatedemo.
	Samples SampleSettings

	// Unknown lists keys in the source file that no setting reads, as
	// dotted paths.
	Unknown []string
}

// StoreSettings configures the owner store.
type StoreSettings struct {
	Driver string
	Path   string
}

// SampleSettings configures the sample producers.
type SampleSettings struct {
	TimingInterval  time.Duration
	CalculatorDelay time.Duration
	SendLatency     time.Duration
}

// knownKeys lists every key FromValues reads. Nested maps are sections.
var knownKeys = map[string]any{
	"pending_limit": nil,
	"log_level":     nil,
	"metrics":       nil,
	"tracing":       nil,
	"loop":          map[string]any{"backlog_warning": nil},
	"store":         map[string]any{"driver": nil, "path": nil},
	"samples": map[string]any{
		"timing_interval":  nil,
		"calculator_delay": nil,
		"send_latency":     nil,
	},
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		LoopBacklogWarn: 1000,
		LogLevel:        "info",
		Store:           StoreSettings{Driver: DriverMemory},
		Samples: SampleSettings{
			TimingInterval:  200 * time.Millisecond,
			CalculatorDelay: time.Second,
			SendLatency:     time.Second,
		},
	}
}

// FromValues reads settings from loaded values, keeping defaults for
// missing keys.
//
//	pending_limit: 100
//	log_level: debug
//	metrics: true
//	tracing: false
//	loop:
//	  backlog_warning: 500
//	store:
//	  driver: sqlite
//	  path: owners.db
//	samples:
//	  timing_interval: 200ms
//	  calculator_delay: 1s
//	  send_latency: 2.5 # seconds
func FromValues(v Values) Settings {
	s := Default()
	s.PendingLimit = v.Int("pending_limit", s.PendingLimit)
	s.LogLevel = v.String("log_level", s.LogLevel)
	s.Metrics = v.Bool("metrics", s.Metrics)
	s.Tracing = v.Bool("tracing", s.Tracing)

	lp := v.Section("loop")
	s.LoopBacklogWarn = lp.Int("backlog_warning", s.LoopBacklogWarn)

	st := v.Section("store")
	s.Store.Driver = st.String("driver", s.Store.Driver)
	s.Store.Path = st.String("path", s.Store.Path)

	sm := v.Section("samples")
	s.Samples.TimingInterval = sm.Duration("timing_interval", s.Samples.TimingInterval)
	s.Samples.CalculatorDelay = sm.Duration("calculator_delay", s.Samples.CalculatorDelay)
	s.Samples.SendLatency = sm.Duration("send_latency", s.Samples.SendLatency)

	s.Unknown = unknownKeys("", v.Raw(), knownKeys)
	return s
}

func unknownKeys(prefix string, raw, known map[string]any) []string {
	var out []string
	for key, val := range raw {
		path := prefix + key
		want, ok := known[key]
		if !ok {
			out = append(out, path)
			continue
		}
		section, isSection := want.(map[string]any)
		if nested, ok := val.(map[string]any); ok && isSection {
			out = append(out, unknownKeys(path+".", nested, section)...)
		}
	}
	sort.Strings(out)
	return out
}

// Load reads and validates settings from a file.
func Load(path string) (Settings, error) {
	v, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := FromValues(v)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.PendingLimit < 0 {
		errs = append(errs, fmt.Errorf("pending_limit must be >= 0, got %d", s.PendingLimit))
	}
	if s.LoopBacklogWarn < 0 {
		errs = append(errs, fmt.Errorf("loop.backlog_warning must be >= 0, got %d", s.LoopBacklogWarn))
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"samples.timing_interval", s.Samples.TimingInterval},
		{"samples.calculator_delay", s.Samples.CalculatorDelay},
		{"samples.send_latency", s.Samples.SendLatency},
	} {
		if f.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %s", f.name, f.d))
		}
	}
	switch s.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if s.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", s.Store.Driver))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, or info if it is invalid.
func (s Settings) Level() slog.Level {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger returns a text logger writing to w at the configured level.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.Level()}))
}

// LifecycleOptions converts the settings into lifecycle options.
func (s Settings) LifecycleOptions(logger *slog.Logger) []eventgate.Option {
	opts := []eventgate.Option{
		eventgate.WithLogger(logger),
		eventgate.WithPendingLimit(s.PendingLimit),
	}
	if s.Metrics {
		opts = append(opts, eventgate.WithMetrics(observability.NewMetricsRecorder()))
	}
	if s.Tracing {
		opts = append(opts, eventgate.WithSpanManager(observability.NewSpanManager()))
	}
	return opts
}

// RegistryOptions converts the settings into registry options. The store,
// if any, is passed in by the caller, who owns closing it.
func (s Settings) RegistryOptions(logger *slog.Logger, st store.Store) []eventgate.RegistryOption {
	opts := []eventgate.RegistryOption{
		eventgate.WithLifecycleOptions(s.LifecycleOptions(logger)...),
		eventgate.WithRegistryLogger(logger),
	}
	if st != nil {
		opts = append(opts, eventgate.WithOwnerStore(st))
	}
	if s.Tracing {
		opts = append(opts, eventgate.WithRegistrySpans(observability.NewSpanManager()))
	}
	return opts
}

// LoopOptions converts the settings into dispatch loop options.
func (s Settings) LoopOptions(logger *slog.Logger) []loop.Option {
	return []loop.Option{
		loop.WithLogger(logger),
		loop.WithBacklogWarning(s.LoopBacklogWarn),
	}
}

// OpenStore opens the configured owner store.
func (s Settings) OpenStore() (store.Store, error) {
	switch s.Store.Driver {
	case DriverMemory, "":
		return store.NewMemoryStore(), nil
	case DriverSQLite:
		st, err := store.NewSQLiteStore(s.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", s.Store.Driver)
	}
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", name)
	}
	return level, nil
}
