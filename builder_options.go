package phtable

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/displace"
	"github.com/tamirms/phtable/internal/keyhash"
)

const (
	// DefaultMaxKeys is the static key capacity used when WithMaxKeys is not set.
	DefaultMaxKeys = 1 << 24

	// MaxKeys is the largest capacity WithMaxKeys accepts.
	MaxKeys = 1 << 31

	// DefaultLoadFactor is the λ used when WithLoadFactor is not set.
	DefaultLoadFactor = displace.DefaultLoadFactor

	// DefaultSlotLoad is the α used when WithSlotLoad is not set.
	DefaultSlotLoad = displace.DefaultSlotLoad

	// DefaultMaxRetries is the default number of construction attempts.
	DefaultMaxRetries = 16

	// maxAttempts is bounded by the header's uint16 attempts field.
	maxAttempts = math.MaxUint16

	// maxEntryBytes bounds the entry region, addressed by uint32 slot offsets.
	maxEntryBytes = math.MaxUint32
)

// BuildOption is a functional option for configuring builds.
type BuildOption func(*buildConfig)

type buildConfig struct {
	loadFactor      float64 // λ: average keys per bucket
	slotLoad        float64 // α: keys per slot
	maxRetries      int     // R_max: construction attempts
	maxDisplacement int     // D_max: 0 means numSlots
	globalSeed      uint64
	hashAlgorithm   HashAlgorithm
	maxKeys         int
	userMetadata    []byte
	logger          *zap.Logger

	setMode bool           // keys only; set by BuildSet
	hasher  keyhash.Hasher // overrides hashAlgorithm when non-nil
}

func defaultBuildConfig() *buildConfig {
	return &buildConfig{
		loadFactor:    DefaultLoadFactor,
		slotLoad:      DefaultSlotLoad,
		maxRetries:    DefaultMaxRetries,
		globalSeed:    0x1234567890abcdef, // Arbitrary default; overridden via WithGlobalSeed
		hashAlgorithm: HashXXH3,
		maxKeys:       DefaultMaxKeys,
		logger:        zap.NewNop(),
	}
}

func newBuildConfig(opts []BuildOption) (*buildConfig, error) {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *buildConfig) validate() error {
	switch {
	case !(c.loadFactor > 0) || math.IsInf(c.loadFactor, 0):
		return fmt.Errorf("%w: load factor %v must be positive", pherrors.ErrInvalidConfig, c.loadFactor)
	case !(c.slotLoad > 0 && c.slotLoad <= 1):
		return fmt.Errorf("%w: slot load %v must be in (0, 1]", pherrors.ErrInvalidConfig, c.slotLoad)
	case c.maxRetries < 1 || c.maxRetries > maxAttempts:
		return fmt.Errorf("%w: max retries %d must be in [1, %d]", pherrors.ErrInvalidConfig, c.maxRetries, maxAttempts)
	case c.maxDisplacement < 0:
		return fmt.Errorf("%w: max displacement %d is negative", pherrors.ErrInvalidConfig, c.maxDisplacement)
	case c.maxKeys < 0 || c.maxKeys > MaxKeys:
		return fmt.Errorf("%w: max keys %d must be in [0, %d]", pherrors.ErrInvalidConfig, c.maxKeys, MaxKeys)
	case uint64(len(c.userMetadata)) > math.MaxUint32:
		return fmt.Errorf("%w: user metadata too large", pherrors.ErrInvalidConfig)
	}
	if c.hasher == nil {
		h, err := newKeyHasher(c.hashAlgorithm)
		if err != nil {
			return fmt.Errorf("%w: unknown hash algorithm %d", pherrors.ErrInvalidConfig, c.hashAlgorithm)
		}
		c.hasher = h
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return nil
}

// WithLoadFactor sets λ, the average number of keys per bucket.
// The bucket count is ceil(n/λ). Larger values give smaller tables and
// harder construction. Default is 1.5.
func WithLoadFactor(lambda float64) BuildOption {
	return func(c *buildConfig) {
		c.loadFactor = lambda
	}
}

// WithSlotLoad sets α, the fraction of slots holding a key.
// The slot count is max(n, ceil(n/α)); α = 1 gives a minimal table.
// Default is 0.8.
func WithSlotLoad(alpha float64) BuildOption {
	return func(c *buildConfig) {
		c.slotLoad = alpha
	}
}

// WithMaxRetries sets the number of construction attempts, each with a
// fresh seed. Default is 16.
func WithMaxRetries(n int) BuildOption {
	return func(c *buildConfig) {
		c.maxRetries = n
	}
}

// WithMaxDisplacement bounds the displacement search per bucket.
// 0 (default) searches every slot.
func WithMaxDisplacement(d int) BuildOption {
	return func(c *buildConfig) {
		c.maxDisplacement = d
	}
}

// WithGlobalSeed sets the seed of the first construction attempt.
// Later attempts derive their seeds from it deterministically.
func WithGlobalSeed(seed uint64) BuildOption {
	return func(c *buildConfig) {
		c.globalSeed = seed
	}
}

// WithHashAlgorithm sets the key hash. Default is HashXXH3.
func WithHashAlgorithm(a HashAlgorithm) BuildOption {
	return func(c *buildConfig) {
		c.hashAlgorithm = a
	}
}

// WithMaxKeys sets the static key capacity. Building more keys fails with
// ErrCapacityOverflow. Default is 1<<24.
func WithMaxKeys(n int) BuildOption {
	return func(c *buildConfig) {
		c.maxKeys = n
	}
}

// WithUserMetadata sets the variable-length user metadata.
// The metadata is copied, so the caller can reuse the slice after this call.
func WithUserMetadata(data []byte) BuildOption {
	return func(c *buildConfig) {
		c.userMetadata = append([]byte(nil), data...) // Copy slice
	}
}

// WithLogger sets the logger for construction diagnostics.
// Default is a no-op logger.
func WithLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = l
	}
}
