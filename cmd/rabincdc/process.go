package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kalbasit/rabincdc"
	"github.com/kalbasit/rabincdc/internal/report"
)

// stdinName selects standard input as a source.
const stdinName = "-"

// Manifest lists the blocks of one input.
type Manifest struct {
	File   string         `json:"file"`
	Size   uint64         `json:"size"`
	Blocks []report.Entry `json:"blocks"`
	Error  string         `json:"error,omitempty"`
}

type processor struct {
	pool   *rabincdc.ChunkerPool
	report *report.Report
	log    *zap.Logger
	stdin  io.Reader
}

// processFiles chunks every file with the given number of workers and
// returns one manifest per file, in input order.
func (p *processor) processFiles(ctx context.Context, files []string, workers int) []Manifest {
	manifests := make([]Manifest, len(files))

	var (
		wg      sync.WaitGroup
		currIdx int64
	)

	workers = max(1, min(workers, len(files)))
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for {
				idx := atomic.AddInt64(&currIdx, 1) - 1
				if idx >= int64(len(files)) || ctx.Err() != nil {
					return
				}

				manifests[idx] = p.processFile(ctx, files[idx])
			}
		}()
	}

	wg.Wait()

	return manifests
}

func (p *processor) processFile(ctx context.Context, name string) Manifest {
	m := Manifest{File: name}

	src, closeSrc, err := p.open(name)
	if err != nil {
		p.log.Error("unable to open input", zap.String("file", name), zap.Error(err))
		m.Error = err.Error()

		return m
	}

	defer closeSrc()

	c, err := p.pool.Get(src)
	if err != nil {
		m.Error = err.Error()

		return m
	}

	defer p.pool.Put(c)

	// Blocks only reach the report once the whole input has been chunked.
	batch := p.report.NewBatch()

	for block, err := range c.All() {
		if err != nil {
			p.log.Error("unable to chunk input",
				zap.String("file", name),
				zap.Int("discarded_blocks", batch.Len()),
				zap.Error(err))
			m.Error = err.Error()

			return m
		}

		batch.Add(block)
		m.Size += uint64(block.Length)

		if ctx.Err() != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		m.Error = err.Error()

		return m
	}

	m.Blocks = batch.Commit()
	p.report.AddFile()
	p.log.Debug("chunked input",
		zap.String("file", name),
		zap.Uint64("bytes", m.Size),
		zap.Int("blocks", len(m.Blocks)))

	return m
}

func (p *processor) open(name string) (io.Reader, func(), error) {
	if name == stdinName {
		return rabincdc.NewStreamSource(p.stdin), func() {}, nil
	}

	src, err := rabincdc.OpenFile(name)
	if err != nil {
		return nil, nil, err
	}

	return src, func() {
		if err := src.Close(); err != nil {
			p.log.Warn("unable to close input", zap.String("file", name), zap.Error(err))
		}
	}, nil
}

// writeText prints one line per block: file, offset, length, fingerprint
// and digest.
func writeText(w io.Writer, manifests []Manifest) error {
	for _, m := range manifests {
		for _, e := range m.Blocks {
			if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", m.File, e.Offset, e.Length, e.Fingerprint, e.Digest); err != nil {
				return err
			}
		}
	}

	return nil
}

// failed returns the number of inputs that could not be chunked.
func failed(manifests []Manifest) int {
	var n int

	for _, m := range manifests {
		if m.Error != "" {
			n++
		}
	}

	return n
}
