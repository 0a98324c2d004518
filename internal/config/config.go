// Package config resolves runtime settings from defaults, an optional YAML file, the
// environment (with .env support) and the command line, later sources winning.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rimio/sota-notifier/internal/geo"
	"github.com/rimio/sota-notifier/internal/sota"
)

const (
	DefaultConfigPath = "sota-notifier.yaml"
	DefaultDistanceKm = 2000
	DefaultInterval   = 60 * time.Second
	DefaultAPIURL     = sota.DefaultBaseURL
	DefaultNtfyURL    = "https://ntfy.sh"
)

// Config holds all resolved settings.
type Config struct {
	Location    geo.Point
	DistanceKm  float64
	Interval    time.Duration
	ConfigPath  string
	APIURL      string
	HTTPTimeout time.Duration

	NotifyCommand  string
	NotifyAppName  string
	DesktopEnabled bool
	NtfyURL        string
	NtfyTopic      string
	NtfyTags       []string
	Modes          []string

	DispatchWorkers   int
	DispatchQueueSize int
	OpsAddr           string
	JournalPath       string
	WatchConfig       bool
	StatsInterval     time.Duration

	// Pinned names the reloadable keys (KeyDistance, KeyModes) set by the environment or a
	// flag. A config file edit must not override them.
	Pinned map[string]bool
}

// Hot-reloadable YAML keys.
const (
	KeyDistance = "distance_km"
	KeyModes    = "modes"
)

// Error is a configuration problem detected before the monitor starts.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fieldErr(field string, format string, args ...any) error {
	return &Error{Field: field, Err: fmt.Errorf(format, args...)}
}

// Load resolves the configuration. args excludes the program name. A request for help
// returns an error wrapping flag.ErrHelp.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	flags, positional := splitArgs(args)
	fs, fv := newFlagSet()
	if err := fs.Parse(flags); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, &Error{Err: err}
	}
	positional = append(positional, fs.Args()...)
	if len(positional) > 1 {
		return Config{}, &Error{Field: "location", Err: fmt.Errorf("unexpected arguments %q", positional[1:])}
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := Config{
		DistanceKm:        DefaultDistanceKm,
		Interval:          DefaultInterval,
		ConfigPath:        getenv("CONFIG_PATH", DefaultConfigPath),
		APIURL:            DefaultAPIURL,
		HTTPTimeout:       20 * time.Second,
		NotifyCommand:     "notify-send",
		NotifyAppName:     "SOTA notifier",
		DesktopEnabled:    true,
		NtfyURL:           DefaultNtfyURL,
		DispatchWorkers:   2,
		DispatchQueueSize: 32,
		JournalPath:       ":memory:",
		WatchConfig:       true,
		StatsInterval:     15 * time.Minute,
	}
	if set["config"] {
		cfg.ConfigPath = fv.configPath
	}
	location := ""

	file, found, err := ReadFile(cfg.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	if found {
		location = file.apply(&cfg, location)
	}

	location = getenv("LOCATION", location)
	if v := os.Getenv("DISTANCE_KM"); v != "" {
		d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Config{}, fieldErr("DISTANCE_KM", "not a number: %q", v)
		}
		cfg.DistanceKm = d
		cfg.pin(KeyDistance)
	}
	if v := os.Getenv("INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fieldErr("INTERVAL_SECONDS", "not an integer: %q", v)
		}
		cfg.Interval = time.Duration(n) * time.Second
	}
	cfg.APIURL = getenv("SOTA_API_URL", cfg.APIURL)
	cfg.HTTPTimeout = time.Duration(clampInt(getenvInt("HTTP_TIMEOUT_SECONDS", int(cfg.HTTPTimeout/time.Second)), 1, 300)) * time.Second
	cfg.NotifyCommand = getenv("NOTIFY_COMMAND", cfg.NotifyCommand)
	cfg.NotifyAppName = getenv("NOTIFY_APP_NAME", cfg.NotifyAppName)
	cfg.DesktopEnabled = !getenvBool("NOTIFY_DISABLE_DESKTOP", !cfg.DesktopEnabled)
	cfg.NtfyURL = getenv("NTFY_URL", cfg.NtfyURL)
	cfg.NtfyTopic = getenv("NTFY_TOPIC", cfg.NtfyTopic)
	if v := os.Getenv("NTFY_TAGS"); v != "" {
		cfg.NtfyTags = splitList(v)
	}
	if v, ok := os.LookupEnv("MODES"); ok {
		cfg.Modes = splitList(v)
		cfg.pin(KeyModes)
	}
	cfg.DispatchWorkers = clampInt(getenvInt("DISPATCH_WORKERS", cfg.DispatchWorkers), 1, 16)
	cfg.DispatchQueueSize = clampInt(getenvInt("DISPATCH_QUEUE_SIZE", cfg.DispatchQueueSize), 1, 1024)
	cfg.OpsAddr = getenv("OPS_ADDR", cfg.OpsAddr)
	cfg.JournalPath = getenv("JOURNAL_PATH", cfg.JournalPath)
	cfg.WatchConfig = getenvBool("WATCH_CONFIG", cfg.WatchConfig)
	if n := getenvInt("STATS_INTERVAL_SECONDS", int(cfg.StatsInterval/time.Second)); n >= 0 {
		cfg.StatsInterval = time.Duration(n) * time.Second
	}

	if len(positional) == 1 {
		location = positional[0]
	}
	if set["d"] || set["distance"] {
		cfg.DistanceKm = fv.distance
		cfg.pin(KeyDistance)
	}
	if set["i"] || set["interval"] {
		cfg.Interval = time.Duration(fv.interval) * time.Second
	}

	if strings.TrimSpace(location) == "" {
		return Config{}, fieldErr("location", "required, e.g. \"44.43,26.10\"")
	}
	pt, err := geo.ParsePoint(location)
	if err != nil {
		return Config{}, &Error{Field: "location", Err: err}
	}
	cfg.Location = pt
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	log.Printf("config: location=%s distance_km=%.0f interval=%s file=%s found=%t ops=%q",
		cfg.Location, cfg.DistanceKm, cfg.Interval, cfg.ConfigPath, found, cfg.OpsAddr)
	return cfg, nil
}

func (c *Config) pin(key string) {
	if c.Pinned == nil {
		c.Pinned = map[string]bool{}
	}
	c.Pinned[key] = true
}

func (c Config) validate() error {
	if err := validDistance("distance", c.DistanceKm); err != nil {
		return err
	}
	if c.Interval < time.Second {
		return fieldErr("interval", "must be at least 1 second, got %s", c.Interval)
	}
	if strings.TrimSpace(c.APIURL) == "" {
		return fieldErr("SOTA_API_URL", "must not be empty")
	}
	return nil
}

type flagValues struct {
	distance   float64
	interval   int
	configPath string
}

func newFlagSet() (*flag.FlagSet, *flagValues) {
	fv := &flagValues{}
	fs := flag.NewFlagSet("sota-notifier", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Float64Var(&fv.distance, "d", DefaultDistanceKm, "maximum distance in km")
	fs.Float64Var(&fv.distance, "distance", DefaultDistanceKm, "maximum distance in km")
	fs.IntVar(&fv.interval, "i", int(DefaultInterval/time.Second), "poll interval in seconds")
	fs.IntVar(&fv.interval, "interval", int(DefaultInterval/time.Second), "poll interval in seconds")
	fs.StringVar(&fv.configPath, "config", DefaultConfigPath, "path to the YAML config file")
	return fs, fv
}

// Usage writes command-line help to w.
func Usage(w io.Writer) {
	fs, _ := newFlagSet()
	fs.SetOutput(w)
	fmt.Fprintln(w, "usage: sota-notifier [-d km] [-i seconds] [-config file] \"lat,lon\"")
	fs.PrintDefaults()
}

func validDistance(field string, km float64) error {
	if km < 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		return fieldErr(field, "must be a non-negative number of km, got %v", km)
	}
	return nil
}

// splitArgs pulls coordinate pairs out of args so a negative latitude is not taken
// for a flag.
func splitArgs(args []string) (flags, positional []string) {
	for _, a := range args {
		if looksLikePoint(a) {
			positional = append(positional, a)
			continue
		}
		flags = append(flags, a)
	}
	return flags, positional
}

func looksLikePoint(s string) bool {
	head, _, ok := strings.Cut(s, ",")
	if !ok {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(head), 64)
	return err == nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
