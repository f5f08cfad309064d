package registry

type config struct {
	shardCount     int
	maxConnections int64
}

func defaultConfig() config {
	return config{
		shardCount:     32,
		maxConnections: 65536,
	}
}

// Option defines a functional configuration type for the Registry.
type Option func(*config)

// WithShardCount sets the number of partitions. Rounded up to the next
// power of two so the shard index is a cheap mask.
func WithShardCount(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		p := 1
		for p < n {
			p <<= 1
		}
		c.shardCount = p
	}
}

// WithMaxConnections sets the hard ceiling on registered handles.
func WithMaxConnections(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConnections = n
		}
	}
}
