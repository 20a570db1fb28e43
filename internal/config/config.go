// Package config loads the rabincdc command configuration from flags,
// RABINCDC_* environment variables and an optional config file, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every configuration error.
var ErrInvalid = errors.New("config: invalid value")

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the resolved command configuration.
type Config struct {
	LogLevel    string
	Window      int
	Polynomial  uint64
	MinSize     uint32
	AvgSize     uint32
	MaxSize     uint32
	BufferSize  int
	Workers     int
	Format      string
	Compress    bool
	MetricsFile string
	RandomPoly  bool
	Quiet       bool
}

// NewFlagSet returns the flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "Read settings from this file (yaml, toml or json)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Int("window", 32, "Rolling window size in bytes")
	fs.String("polynomial", "0xbfe6b8a5bf378d83", "Irreducible polynomial, decimal or 0x-prefixed hex")
	fs.String("min-size", "8KiB", "Minimum block size")
	fs.String("avg-size", "128KiB", "Average block size")
	fs.String("max-size", "8MiB", "Maximum block size")
	fs.String("buffer-size", "0", "Input buffer size, 0 for twice the maximum block size")
	fs.Int("workers", 0, "Number of files chunked concurrently, 0 for num cpus")
	fs.String("format", FormatText, "Output format (text, json)")
	fs.Bool("compress", false, "Report the zstd compressed size of unique blocks")
	fs.String("metrics-file", "", "Write block metrics to this file in Prometheus text format")
	fs.Bool("random-poly", false, "Print a random irreducible polynomial and exit")
	fs.BoolP("quiet", "q", false, "Only print the summary")

	return fs
}

// Load parses args into fs and resolves the configuration. It returns the
// remaining positional arguments.
func Load(fs *pflag.FlagSet, args []string) (*Config, []string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("RABINCDC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		LogLevel:    v.GetString("log-level"),
		Window:      v.GetInt("window"),
		Workers:     v.GetInt("workers"),
		Format:      v.GetString("format"),
		Compress:    v.GetBool("compress"),
		MetricsFile: v.GetString("metrics-file"),
		RandomPoly:  v.GetBool("random-poly"),
		Quiet:       v.GetBool("quiet"),
	}

	var err error

	if cfg.Polynomial, err = strconv.ParseUint(v.GetString("polynomial"), 0, 64); err != nil {
		return nil, nil, fmt.Errorf("%w: polynomial %q: %w", ErrInvalid, v.GetString("polynomial"), err)
	}

	if cfg.MinSize, err = parseSize(v, "min-size"); err != nil {
		return nil, nil, err
	}

	if cfg.AvgSize, err = parseSize(v, "avg-size"); err != nil {
		return nil, nil, err
	}

	if cfg.MaxSize, err = parseSize(v, "max-size"); err != nil {
		return nil, nil, err
	}

	bufferSize, err := parseSize(v, "buffer-size")
	if err != nil {
		return nil, nil, err
	}

	cfg.BufferSize = int(bufferSize)

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	return cfg, fs.Args(), nil
}

func parseSize(v *viper.Viper, key string) (uint32, error) {
	s := v.GetString(key)

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrInvalid, key, s, err)
	}

	if n > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s %q exceeds 4GiB", ErrInvalid, key, s)
	}

	return uint32(n), nil
}

func (c *Config) validate() error {
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: format %q", ErrInvalid, c.Format)
	}

	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	return nil
}
