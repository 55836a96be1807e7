package timeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evidentia/timeline/cache"
	"github.com/evidentia/timeline/store"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config describes a timeline service: the backing store and the
// checkpoint cache behavior.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Cache CacheConfig `yaml:"cache"`
}

// StoreConfig selects and addresses the store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the SQLite file path or PostgreSQL connection string.
	DSN string `yaml:"dsn"`
	// Create builds the schema instead of expecting an existing store.
	Create bool `yaml:"create"`
}

// CacheConfig tunes the checkpoint cache.
type CacheConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(cache.DefaultTTL)
	}
	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = Duration(cache.DefaultSweepInterval)
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required")
	}
	if c.Cache.TTL < 0 || c.Cache.SweepInterval < 0 {
		return fmt.Errorf("cache durations must be positive")
	}
	return nil
}

// Service bundles a Reader with the store and checkpoint cache it owns.
type Service struct {
	*Reader
	store       store.Store
	checkpoints *cache.Checkpoints
}

// Open wires a full timeline service from a config: store, checkpoint
// cache and reader. Close the service to release all of them.
func Open(cfg *Config, opts ...ReaderOption) (*Service, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	if cfg.Store.Create {
		st, err = store.CreateStore(cfg.Store.Driver, cfg.Store.DSN)
	} else {
		st, err = store.OpenStore(cfg.Store.Driver, cfg.Store.DSN)
	}
	if err != nil {
		return nil, err
	}

	cp := cache.New(time.Duration(cfg.Cache.TTL), time.Duration(cfg.Cache.SweepInterval))
	return &Service{
		Reader:      NewReader(st, cp, opts...),
		store:       st,
		checkpoints: cp,
	}, nil
}

// Store exposes the underlying event store for ingest and maintenance.
func (s *Service) Store() store.Store { return s.store }

// Close releases the checkpoint cache and the store connection.
func (s *Service) Close() error {
	s.checkpoints.Close()
	return s.store.Close()
}
