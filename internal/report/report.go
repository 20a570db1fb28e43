// Package report accumulates statistics over chunked blocks: sizes,
// duplicates by BLAKE3 digest and, optionally, the zstd compressed size of
// unique blocks. A Report is safe for concurrent use.
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/kalbasit/rabincdc"
)

// Entry describes one block in a manifest.
type Entry struct {
	Offset      uint64 `json:"offset"`
	Length      uint32 `json:"length"`
	Fingerprint string `json:"fingerprint"`
	Digest      string `json:"blake3"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// Summary is a snapshot of the accumulated statistics.
type Summary struct {
	Files          int
	Blocks         int
	Duplicates     int
	TotalBytes     uint64
	UniqueBytes    uint64
	CompressedSize uint64 // zero unless compression is enabled
	MinBlock       uint32
	MaxBlock       uint32
}

// MeanBlock returns the mean block size in bytes.
func (s Summary) MeanBlock() uint64 {
	if s.Blocks == 0 {
		return 0
	}

	return s.TotalBytes / uint64(s.Blocks) //nolint:gosec // G115
}

// Report collects block statistics.
type Report struct {
	enc *zstd.Encoder

	reg        *prometheus.Registry
	sizes      prometheus.Histogram
	duplicates prometheus.Counter
	bytes      prometheus.Counter

	mu   sync.Mutex
	seen map[[32]byte]struct{}
	sum  Summary
}

// New returns an empty Report. When compress is set, unique blocks are
// compressed with zstd to measure their stored size.
func New(compress bool) (*Report, error) {
	r := &Report{
		reg:  prometheus.NewRegistry(),
		seen: make(map[[32]byte]struct{}),
		sizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rabincdc_block_size_bytes",
			Help:    "Distribution of block sizes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 16),
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rabincdc_duplicate_blocks_total",
			Help: "Blocks whose content was seen before",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rabincdc_bytes_total",
			Help: "Bytes chunked",
		}),
	}

	r.reg.MustRegister(r.sizes, r.duplicates, r.bytes)

	if compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("report: create zstd encoder: %w", err)
		}

		r.enc = enc
	}

	return r, nil
}

// AddFile counts one processed input.
func (r *Report) AddFile() {
	r.mu.Lock()
	r.sum.Files++
	r.mu.Unlock()
}

// Add records a block and returns its manifest entry.
func (r *Report) Add(b rabincdc.Block) Entry {
	batch := r.NewBatch()
	batch.Add(b)

	return batch.Commit()[0]
}

// Batch stages the blocks of one input. Nothing is counted until Commit,
// so the blocks of an input that fails part way can be dropped.
type Batch struct {
	r       *Report
	items   []staged
	entries []Entry
	local   map[[32]byte]struct{}
}

type staged struct {
	digest     [32]byte
	length     uint32
	compressed int
}

// NewBatch returns an empty batch bound to r. A Batch is not safe for
// concurrent use.
func (r *Report) NewBatch() *Batch {
	return &Batch{r: r, local: make(map[[32]byte]struct{})}
}

// Add hashes a block and, when compression is enabled and the content is
// new, measures its compressed size. b.Data is not retained.
func (bt *Batch) Add(b rabincdc.Block) {
	item := staged{digest: blake3.Sum256(b.Data), length: b.Length}

	if bt.r.enc != nil {
		_, local := bt.local[item.digest]

		bt.r.mu.Lock()
		_, seen := bt.r.seen[item.digest]
		bt.r.mu.Unlock()

		if !local && !seen {
			// EncodeAll may be called concurrently.
			item.compressed = len(bt.r.enc.EncodeAll(b.Data, nil))
		}
	}

	bt.local[item.digest] = struct{}{}
	bt.items = append(bt.items, item)
	bt.entries = append(bt.entries, Entry{
		Offset:      b.Offset,
		Length:      b.Length,
		Fingerprint: fmt.Sprintf("%#016x", b.Fingerprint),
		Digest:      hex.EncodeToString(item.digest[:]),
	})
}

// Len returns the number of staged blocks.
func (bt *Batch) Len() int { return len(bt.items) }

// Commit adds the staged blocks to the report in order and returns their
// manifest entries with duplicates marked. The batch is empty afterwards.
func (bt *Batch) Commit() []Entry {
	r := bt.r
	entries := bt.entries

	var dups int

	r.mu.Lock()

	for i, item := range bt.items {
		_, dup := r.seen[item.digest]
		if !dup {
			r.seen[item.digest] = struct{}{}
			r.sum.UniqueBytes += uint64(item.length)
			r.sum.CompressedSize += uint64(item.compressed) //nolint:gosec // G115
		} else {
			r.sum.Duplicates++
			dups++
		}

		if r.sum.Blocks == 0 || item.length < r.sum.MinBlock {
			r.sum.MinBlock = item.length
		}

		r.sum.MaxBlock = max(r.sum.MaxBlock, item.length)
		r.sum.Blocks++
		r.sum.TotalBytes += uint64(item.length)

		entries[i].Duplicate = dup
	}

	r.mu.Unlock()

	for _, item := range bt.items {
		r.sizes.Observe(float64(item.length))
		r.bytes.Add(float64(item.length))
	}

	r.duplicates.Add(float64(dups))

	bt.items, bt.entries = nil, nil
	clear(bt.local)

	return entries
}

// Summary returns the statistics collected so far.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sum
}

// WriteText writes a human readable summary to w.
func (r *Report) WriteText(w io.Writer) error {
	s := r.Summary()

	_, err := fmt.Fprintf(w,
		"files: %s  blocks: %s  duplicates: %s\n"+
			"total: %s  unique: %s  block size min/mean/max: %s / %s / %s\n",
		humanize.Comma(int64(s.Files)),
		humanize.Comma(int64(s.Blocks)),
		humanize.Comma(int64(s.Duplicates)),
		humanize.IBytes(s.TotalBytes),
		humanize.IBytes(s.UniqueBytes),
		humanize.IBytes(uint64(s.MinBlock)),
		humanize.IBytes(s.MeanBlock()),
		humanize.IBytes(uint64(s.MaxBlock)),
	)
	if err != nil {
		return err
	}

	if s.TotalBytes > 0 {
		ratio := float64(s.UniqueBytes) / float64(s.TotalBytes)
		if _, err := fmt.Fprintf(w, "unique: %6.2f%% of total (%5.2fx effective space)\n", ratio*100, 1/ratio); err != nil {
			return err
		}
	}

	if r.enc != nil {
		if _, err := fmt.Fprintf(w, "compressed unique: %s\n", humanize.IBytes(s.CompressedSize)); err != nil {
			return err
		}
	}

	return nil
}

// WriteMetrics writes the block metrics to path in the Prometheus text
// exposition format, for the node exporter textfile collector.
func (r *Report) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("report: write metrics: %w", err)
	}

	return nil
}

// Close releases the compression encoder.
func (r *Report) Close() error {
	if r.enc != nil {
		return r.enc.Close()
	}

	return nil
}
