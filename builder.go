package ohc

// Builder assembles a Config fluently and constructs an OHCache from it:
// sensible defaults, chained setters, validation deferred to Build.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder seeded with defaults for every option
// that may be left unspecified.
func NewBuilder() *Builder {
	return &Builder{
		cfg: Config{
			BlockSize:              8192,
			CleanupTrigger:         0,
			CleanupCheckIntervalMs: 1000,
			LRUListWarnTrigger:     1024,
			StatisticsEnabled:      true,
		},
	}
}

func (b *Builder) WithBlockSize(n uint32) *Builder {
	b.cfg.BlockSize = n
	return b
}

func (b *Builder) WithCapacity(n uint64) *Builder {
	b.cfg.Capacity = n
	return b
}

func (b *Builder) WithHashTableSize(n uint32) *Builder {
	b.cfg.HashTableSize = n
	return b
}

func (b *Builder) WithCleanupTrigger(frac float64) *Builder {
	b.cfg.CleanupTrigger = frac
	return b
}

func (b *Builder) WithCleanupCheckInterval(ms int64) *Builder {
	b.cfg.CleanupCheckIntervalMs = ms
	return b
}

func (b *Builder) WithLRUListWarnTrigger(n int) *Builder {
	b.cfg.LRUListWarnTrigger = n
	return b
}

func (b *Builder) WithStatisticsEnabled(enabled bool) *Builder {
	b.cfg.StatisticsEnabled = enabled
	return b
}

// Build validates and normalizes the accumulated configuration and
// constructs an OHCache over a freshly allocated region.
func (b *Builder) Build() (*OHCache, error) {
	cfg := b.cfg
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return newOHCache(cfg)
}
