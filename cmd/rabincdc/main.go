// Command rabincdc splits files into content-defined blocks with a Rabin
// fingerprint and reports how well they deduplicate.
//
// Usage:
//
//	rabincdc [flags] [file ...]
//
// With no files, or with "-", standard input is chunked.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kalbasit/rabincdc"
	"github.com/kalbasit/rabincdc/internal/config"
	"github.com/kalbasit/rabincdc/internal/logger"
	"github.com/kalbasit/rabincdc/internal/report"
)

// errFailedInputs is returned when some inputs could not be chunked.
var errFailedInputs = errors.New("some inputs could not be chunked")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := config.NewFlagSet("rabincdc")

	cfg, args, err := config.Load(fs, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(ctx, cfg, args, os.Stdin, os.Stdout, os.Stderr, log); err != nil {
		log.Error("rabincdc failed", zap.Error(err))
		os.Exit(1) //nolint:gocritic // exitAfterDefer
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer, log *zap.Logger) error {
	if cfg.RandomPoly {
		pol, err := rabincdc.RandomPolynomial(rand.Reader)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(stdout, "%#x\n", uint64(pol))

		return err
	}

	pol := rabincdc.Pol(cfg.Polynomial)
	if !pol.Irreducible() {
		log.Warn("polynomial is reducible, block boundaries will be poorly distributed",
			zap.String("polynomial", fmt.Sprintf("%#x", cfg.Polynomial)))
	}

	pool, err := rabincdc.NewChunkerPool(
		rabincdc.WithPolynomial(pol),
		rabincdc.WithWindowSize(cfg.Window),
		rabincdc.WithMinSize(cfg.MinSize),
		rabincdc.WithAvgSize(cfg.AvgSize),
		rabincdc.WithMaxSize(cfg.MaxSize),
		rabincdc.WithBufferSize(cfg.BufferSize),
		rabincdc.WithLogger(log.Named("chunker")),
	)
	if err != nil {
		return err
	}

	rep, err := report.New(cfg.Compress)
	if err != nil {
		return err
	}

	defer func() {
		if err := rep.Close(); err != nil {
			log.Warn("unable to close report", zap.Error(err))
		}
	}()

	if len(args) == 0 {
		args = []string{stdinName}
	}

	log.Info("chunking inputs", zap.Int("inputs", len(args)), zap.Int("workers", cfg.Workers))

	p := &processor{pool: pool, report: rep, log: log, stdin: stdin}
	manifests := p.processFiles(ctx, args, cfg.Workers)

	if !cfg.Quiet {
		if err := writeManifests(stdout, cfg.Format, manifests); err != nil {
			return err
		}
	}

	if err := rep.WriteText(stderr); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := rep.WriteMetrics(cfg.MetricsFile); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if n := failed(manifests); n > 0 {
		return fmt.Errorf("%w: %d of %d", errFailedInputs, n, len(manifests))
	}

	return nil
}

func writeManifests(w io.Writer, format string, manifests []Manifest) error {
	if format == config.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(manifests)
	}

	return writeText(w, manifests)
}
