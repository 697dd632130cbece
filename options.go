package occdex

import "time"

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// apply makes every RepositoryOption a client-wide default.
func (o RepositoryOption) apply(c *clientConfig) {
	c.repoOpts = append(c.repoOpts, o)
}

type clientConfig struct {
	driver    string // "redis", "elastic" or "memory"
	addrs     []string
	username  string
	password  string
	keyPrefix string

	readinessTimeout time.Duration
	instrument       bool
	registry         *Registry

	repoOpts []RepositoryOption
}

// WithRedis connects to Redis 8+ with the JSON and Search modules.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithElastic connects to an Elasticsearch cluster.
func WithElastic(addrs []string, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "elastic"
		c.addrs = addrs
		c.username = username
		c.password = password
	})
}

// WithMemory uses the in-process store.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
	})
}

// WithKeyPrefix namespaces Redis keys. Default: "occdex:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithReadinessTimeout bounds how long New waits for the store. Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithInstrumentation records Prometheus metrics and OpenTelemetry spans for
// every store call. Register the collectors with metrics.RegisterStoreMetrics.
func WithInstrumentation() Option {
	return optionFunc(func(c *clientConfig) {
		c.instrument = true
	})
}

// WithRegistry shares an existing type registry.
func WithRegistry(reg *Registry) Option {
	return optionFunc(func(c *clientConfig) {
		c.registry = reg
	})
}
