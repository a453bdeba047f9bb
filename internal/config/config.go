// Package config loads picker settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-picker-mcp/internal/asset"
	"github.com/ironsheep/image-picker-mcp/internal/imaging"
	"github.com/ironsheep/image-picker-mcp/internal/picker"
)

// Environment variables read by Load.
const (
	EnvConfig        = "IMAGE_PICKER_CONFIG"
	EnvLibrary       = "IMAGE_PICKER_LIBRARY"
	EnvPageSize      = "IMAGE_PICKER_PAGE_SIZE"
	EnvMaxSelections = "IMAGE_PICKER_MAX_SELECTIONS"
	EnvCacheBytes    = "IMAGE_PICKER_CACHE_BYTES"
	EnvLogLevel      = "IMAGE_PICKER_LOG_LEVEL"
)

// ByteSize is a byte count that accepts human readable sizes such as
// "128MB" or "1.5 GiB" in YAML and the environment.
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.Bytes(uint64(b))
}

// UnmarshalYAML accepts either a plain integer or a size string.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	if n, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}
	v, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = v
	return nil
}

// MarshalYAML writes the human readable form.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// CacheConfig bounds the preview cache of each session.
type CacheConfig struct {
	Entries int      `yaml:"entries"`
	Bytes   ByteSize `yaml:"bytes"`
}

// Config holds every runtime setting.
type Config struct {
	// Library is the directory served as the photo library.
	Library string `yaml:"library"`

	// AutoAuthorize grants library access on first request without
	// asking; Watch refreshes sessions when the directory changes.
	AutoAuthorize bool `yaml:"auto_authorize"`
	Watch         bool `yaml:"watch"`

	PageSize      int  `yaml:"page_size"`
	MaxSelections int  `yaml:"max_selections"`
	WantImages    bool `yaml:"want_images"`

	// MediaTypes and Subtypes build the default library filter.
	MediaTypes []string `yaml:"media_types"`
	Subtypes   []string `yaml:"subtypes"`

	PreviewSize     int         `yaml:"preview_size"`
	ExportSize      int         `yaml:"export_size"`
	PrefetchWorkers int         `yaml:"prefetch_workers"`
	Cache           CacheConfig `yaml:"cache"`

	LimitMessage string `yaml:"limit_message"`
	LogLevel     string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Library:         ".",
		AutoAuthorize:   true,
		Watch:           true,
		PageSize:        picker.DefaultPageSize,
		MediaTypes:      []string{"image"},
		PreviewSize:     picker.DefaultPreviewSize.X,
		ExportSize:      2048,
		PrefetchWorkers: 4,
		Cache: CacheConfig{
			Entries: imaging.DefaultCacheEntries,
			Bytes:   ByteSize(imaging.DefaultCacheBytes),
		},
		LimitMessage: picker.DefaultLimitMessage,
		LogLevel:     "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// at $IMAGE_PICKER_CONFIG when path is empty), and environment overrides.
// A missing file is only an error when one was named explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLibrary); v != "" {
		c.Library = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPageSize, err)
		}
		c.PageSize = n
	}
	if v := os.Getenv(EnvMaxSelections); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSelections, err)
		}
		c.MaxSelections = n
	}
	if v := os.Getenv(EnvCacheBytes); v != "" {
		n, err := ParseByteSize(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheBytes, err)
		}
		c.Cache.Bytes = n
	}
	return nil
}

// Validate rejects settings the picker cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Library == "" {
		errs = append(errs, errors.New("library directory is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if c.PreviewSize <= 0 {
		errs = append(errs, fmt.Errorf("preview_size must be positive, got %d", c.PreviewSize))
	}
	if c.ExportSize < 0 {
		errs = append(errs, fmt.Errorf("export_size must not be negative, got %d", c.ExportSize))
	}
	if c.Cache.Entries < 0 || c.Cache.Bytes < 0 {
		errs = append(errs, errors.New("cache bounds must not be negative"))
	}
	if _, err := c.Filter(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Filter builds the library filter from MediaTypes and Subtypes.
func (c *Config) Filter() (asset.Filter, error) {
	var f asset.Filter
	for _, name := range c.MediaTypes {
		mt, ok := asset.ParseMediaType(name)
		if !ok {
			return asset.Filter{}, fmt.Errorf("unknown media type %q", name)
		}
		f.MediaTypes = append(f.MediaTypes, mt)
	}

	mask, unknown := asset.ParseSubtypes(c.Subtypes)
	if len(unknown) > 0 {
		return asset.Filter{}, fmt.Errorf("unknown subtypes: %s", strings.Join(unknown, ", "))
	}
	f.Subtypes = mask
	return f, nil
}

// SessionOptions converts the configuration into picker session options.
func (c *Config) SessionOptions() (picker.Options, error) {
	filter, err := c.Filter()
	if err != nil {
		return picker.Options{}, err
	}
	return picker.Options{
		PageSize:        c.PageSize,
		MaxSelections:   c.MaxSelections,
		Filter:          filter,
		WantImages:      c.WantImages,
		PreviewSize:     image.Pt(c.PreviewSize, c.PreviewSize),
		ExportSize:      image.Pt(c.ExportSize, c.ExportSize),
		CacheEntries:    c.Cache.Entries,
		CacheBytes:      int64(c.Cache.Bytes),
		PrefetchWorkers: c.PrefetchWorkers,
		LimitMessage:    c.LimitMessage,
	}, nil
}
