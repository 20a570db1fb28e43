package rabincdc

import (
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"
)

var (
	// ErrConfigInvalid is wrapped by every construction failure.
	ErrConfigInvalid = errors.New("rabincdc: invalid configuration")

	// ErrInvalidWindowSize is returned when the window is smaller than MinWindowSize.
	ErrInvalidWindowSize = errors.New("window size must be at least 32 bytes")

	// ErrInvalidPolynomial is returned when no polynomial was given or its degree is out of range.
	ErrInvalidPolynomial = errors.New("polynomial degree must be between 8 and 63")

	// ErrInvalidMinSize is returned when minSize is 0.
	ErrInvalidMinSize = errors.New("minSize must be greater than 0")

	// ErrInvalidAvgSize is returned when avgSize is 0 or smaller than minSize.
	ErrInvalidAvgSize = errors.New("avgSize must be at least minSize")

	// ErrInvalidMaxSize is returned when maxSize is 0 or smaller than avgSize.
	ErrInvalidMaxSize = errors.New("maxSize must be at least avgSize")

	// ErrBufferTooSmall is returned when the input buffer cannot hold two maximum sized blocks.
	ErrBufferTooSmall = errors.New("bufferSize must be at least twice maxSize")

	// ErrInvalidArgument is returned by the push-model API for empty input.
	ErrInvalidArgument = errors.New("rabincdc: invalid argument")
)

const (
	// MinWindowSize is the smallest accepted window size in bytes.
	MinWindowSize = 32

	// DefaultWindowSize is the default window size (32 bytes).
	DefaultWindowSize = 32

	// DefaultMinSize is the default minimum block size (8 KiB).
	DefaultMinSize = 8 * 1024

	// DefaultAvgSize is the default average block size (128 KiB).
	DefaultAvgSize = 128 * 1024

	// DefaultMaxSize is the default maximum block size (8 MiB).
	DefaultMaxSize = 8 * 1024 * 1024

	// skipTail is how many bytes before minSize are hashed when the early part
	// of a block is skipped.
	skipTail = 256
)

// Option is a function that configures a Chunker, Scanner or Writer.
type Option func(*config) error

// config holds the configuration for chunking.
type config struct {
	windowSize int
	pol        Pol
	minSize    uint32
	avgSize    uint32
	maxSize    uint32
	bufferSize int // 0 selects 2*maxSize
	copyBlocks bool
	logger     *zap.Logger
}

func defaultConfig() config {
	return config{
		windowSize: DefaultWindowSize,
		minSize:    DefaultMinSize,
		avgSize:    DefaultAvgSize,
		maxSize:    DefaultMaxSize,
	}
}

func newConfig(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}

	return cfg, nil
}

func validatePolynomial(pol Pol) error {
	if d := pol.Deg(); d < 8 || d > 63 {
		return fmt.Errorf("%w: %w: %#x has degree %d", ErrConfigInvalid, ErrInvalidPolynomial, uint64(pol), d)
	}

	return nil
}

// validate checks that the configuration is valid and fills in derived defaults.
func (c *config) validate() error {
	if c.windowSize < MinWindowSize {
		return fmt.Errorf("%w: %w: got %d", ErrConfigInvalid, ErrInvalidWindowSize, c.windowSize)
	}

	if err := validatePolynomial(c.pol); err != nil {
		return err
	}

	if c.minSize == 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, ErrInvalidMinSize)
	}

	if c.avgSize == 0 || c.avgSize < c.minSize {
		return fmt.Errorf("%w: %w: avgSize (%d), minSize (%d)", ErrConfigInvalid, ErrInvalidAvgSize, c.avgSize, c.minSize)
	}

	if c.maxSize == 0 || c.maxSize < c.avgSize {
		return fmt.Errorf("%w: %w: maxSize (%d), avgSize (%d)", ErrConfigInvalid, ErrInvalidMaxSize, c.maxSize, c.avgSize)
	}

	if c.bufferSize == 0 {
		c.bufferSize = 2 * int(c.maxSize)
	}

	if c.bufferSize < 2*int(c.maxSize) {
		return fmt.Errorf("%w: %w: bufferSize (%d), maxSize (%d)", ErrConfigInvalid, ErrBufferTooSmall, c.bufferSize, c.maxSize)
	}

	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	return nil
}

// mask returns the boundary mask: the low floor(log2(avgSize)) bits set.
func (c *config) mask() uint64 {
	return uint64(1)<<(bits.Len32(c.avgSize)-1) - 1
}

// skip returns how many leading bytes of each block are counted without
// being hashed. Skipping is only enabled when the hashed tail is long enough
// to refill the whole window before the first boundary test, so it never
// changes where blocks are cut.
func (c *config) skip() int {
	if c.minSize > 2*skipTail && c.windowSize <= skipTail {
		return int(c.minSize) - skipTail
	}

	return 0
}

// WithWindowSize sets the rolling window size in bytes.
//
// Windows larger than 256 bytes hash every byte of each block because the
// early part of a block can no longer be skipped. Blocks then stay within
// the size bounds and are identical between Chunker and Writer, but cut
// points can differ from implementations that skip regardless of window.
func WithWindowSize(size int) Option {
	return func(c *config) error {
		if size < MinWindowSize {
			return fmt.Errorf("%w: %w: got %d", ErrConfigInvalid, ErrInvalidWindowSize, size)
		}

		c.windowSize = size

		return nil
	}
}

// WithPolynomial sets the irreducible polynomial used as the fingerprint
// modulus. It is required: chunkers only agree on boundaries when they share
// the polynomial, the window size and the block sizes.
func WithPolynomial(pol Pol) Option {
	return func(c *config) error {
		if err := validatePolynomial(pol); err != nil {
			return err
		}

		c.pol = pol

		return nil
	}
}

// WithMinSize sets the minimum block size.
func WithMinSize(size uint32) Option {
	return func(c *config) error {
		if size == 0 {
			return fmt.Errorf("%w: %w", ErrConfigInvalid, ErrInvalidMinSize)
		}

		c.minSize = size

		return nil
	}
}

// WithAvgSize sets the average block size. Only its highest set bit matters.
func WithAvgSize(size uint32) Option {
	return func(c *config) error {
		if size == 0 {
			return fmt.Errorf("%w: %w: got 0", ErrConfigInvalid, ErrInvalidAvgSize)
		}

		c.avgSize = size

		return nil
	}
}

// WithMaxSize sets the maximum block size.
func WithMaxSize(size uint32) Option {
	return func(c *config) error {
		if size == 0 {
			return fmt.Errorf("%w: %w: got 0", ErrConfigInvalid, ErrInvalidMaxSize)
		}

		c.maxSize = size

		return nil
	}
}

// WithBufferSize sets the input buffer capacity of a Chunker.
// Must be at least twice maxSize; 0 selects twice maxSize.
func WithBufferSize(size int) Option {
	return func(c *config) error {
		if size < 0 {
			return fmt.Errorf("%w: %w: got %d", ErrConfigInvalid, ErrBufferTooSmall, size)
		}

		c.bufferSize = size

		return nil
	}
}

// WithCopyBlocks makes Chunker.Next return blocks whose Data is a private
// copy instead of a view into the internal buffer. This costs one allocation
// and copy per block.
func WithCopyBlocks(enabled bool) Option {
	return func(c *config) error {
		c.copyBlocks = enabled

		return nil
	}
}

// WithLogger sets the logger used for buffer and source events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) error {
		c.logger = logger

		return nil
	}
}
