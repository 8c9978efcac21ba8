// Package config holds the daemon's settings: a closed set of options, each
// with a validated setter, persisted as YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/szaher/contextd/internal/compaction"
	"github.com/szaher/contextd/internal/store"
	"github.com/szaher/contextd/internal/summarizer"
)

// DefaultFile is the config file read when no path is given.
const DefaultFile = "contextd.yaml"

// Summarizer backends.
const (
	BackendAnthropic = "anthropic"
	BackendCommand   = "command"
)

const maxConcurrency = 64

var (
	// ErrUnknownOption is returned for keys outside the option set.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidValue is returned when a value fails validation.
	ErrInvalidValue = errors.New("invalid value")
)

// Option names one setting.
type Option string

const (
	DataDir               Option = "data_dir"
	CompactionTime        Option = "compaction_time"
	CompactionConcurrency Option = "compaction_concurrency"
	LockTimeout           Option = "lock_timeout"
	DefaultSystemPrompt   Option = "default_system_prompt"
	Summarizer            Option = "summarizer"
	SummarizerModel       Option = "summarizer_model"
	SummarizerMaxTokens   Option = "summarizer_max_tokens"
	SummarizerCommand     Option = "summarizer_command"
	ResidentChannelID     Option = "resident_channel_id"
	AllowedChannelIDs     Option = "allowed_channel_ids"
	MetricsAddr           Option = "metrics_addr"
	ExportBucket          Option = "export_bucket"
	ExportPrefix          Option = "export_prefix"
)

// Options lists every option in file order.
var Options = []Option{
	DataDir,
	CompactionTime,
	CompactionConcurrency,
	LockTimeout,
	DefaultSystemPrompt,
	Summarizer,
	SummarizerModel,
	SummarizerMaxTokens,
	SummarizerCommand,
	ResidentChannelID,
	AllowedChannelIDs,
	MetricsAddr,
	ExportBucket,
	ExportPrefix,
}

// Valid reports whether o is a known option.
func (o Option) Valid() bool {
	return slices.Contains(Options, o)
}

// Config is the full set of settings.
type Config struct {
	DataDir               string  `yaml:"data_dir"`
	CompactionTime        string  `yaml:"compaction_time"`
	CompactionConcurrency int     `yaml:"compaction_concurrency"`
	LockTimeout           string  `yaml:"lock_timeout"`
	DefaultSystemPrompt   string  `yaml:"default_system_prompt"`
	Summarizer            string  `yaml:"summarizer"`
	SummarizerModel       string  `yaml:"summarizer_model"`
	SummarizerMaxTokens   int     `yaml:"summarizer_max_tokens"`
	SummarizerCommand     string  `yaml:"summarizer_command,omitempty"`
	ResidentChannelID     int64   `yaml:"resident_channel_id,omitempty"`
	AllowedChannelIDs     []int64 `yaml:"allowed_channel_ids,omitempty"`
	MetricsAddr           string  `yaml:"metrics_addr,omitempty"`
	ExportBucket          string  `yaml:"export_bucket,omitempty"`
	ExportPrefix          string  `yaml:"export_prefix,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		DataDir:               "data",
		CompactionTime:        "03:00",
		CompactionConcurrency: 1,
		LockTimeout:           "30s",
		DefaultSystemPrompt:   store.DefaultSystemPrompt,
		Summarizer:            BackendAnthropic,
		SummarizerModel:       summarizer.DefaultModel,
		SummarizerMaxTokens:   summarizer.DefaultMaxTokens,
		SummarizerCommand:     summarizer.DefaultCommand,
	}
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to path as YAML.
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks every option and the constraints between them.
func (c *Config) Validate() error {
	for _, o := range Options {
		v, _ := c.Get(o)
		if err := validate(o, v); err != nil {
			return err
		}
	}
	if c.Summarizer == BackendCommand && c.SummarizerCommand == "" {
		return fmt.Errorf("%s: required when %s is %q: %w", SummarizerCommand, Summarizer, BackendCommand, ErrInvalidValue)
	}
	return nil
}

// Get returns the option's value in its textual form.
func (c *Config) Get(o Option) (string, error) {
	switch o {
	case DataDir:
		return c.DataDir, nil
	case CompactionTime:
		return c.CompactionTime, nil
	case CompactionConcurrency:
		return strconv.Itoa(c.CompactionConcurrency), nil
	case LockTimeout:
		return c.LockTimeout, nil
	case DefaultSystemPrompt:
		return c.DefaultSystemPrompt, nil
	case Summarizer:
		return c.Summarizer, nil
	case SummarizerModel:
		return c.SummarizerModel, nil
	case SummarizerMaxTokens:
		return strconv.Itoa(c.SummarizerMaxTokens), nil
	case SummarizerCommand:
		return c.SummarizerCommand, nil
	case ResidentChannelID:
		return strconv.FormatInt(c.ResidentChannelID, 10), nil
	case AllowedChannelIDs:
		ids := make([]string, len(c.AllowedChannelIDs))
		for i, id := range c.AllowedChannelIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(ids, ","), nil
	case MetricsAddr:
		return c.MetricsAddr, nil
	case ExportBucket:
		return c.ExportBucket, nil
	case ExportPrefix:
		return c.ExportPrefix, nil
	}
	return "", fmt.Errorf("%q: %w", o, ErrUnknownOption)
}

// Set validates value and stores it. c is unchanged on error.
func (c *Config) Set(o Option, value string) error {
	if !o.Valid() {
		return fmt.Errorf("%q: %w", o, ErrUnknownOption)
	}
	value = strings.TrimSpace(value)
	if err := validate(o, value); err != nil {
		return err
	}

	switch o {
	case DataDir:
		c.DataDir = value
	case CompactionTime:
		c.CompactionTime = value
	case CompactionConcurrency:
		c.CompactionConcurrency, _ = strconv.Atoi(value)
	case LockTimeout:
		c.LockTimeout = value
	case DefaultSystemPrompt:
		c.DefaultSystemPrompt = value
	case Summarizer:
		c.Summarizer = value
	case SummarizerModel:
		c.SummarizerModel = value
	case SummarizerMaxTokens:
		c.SummarizerMaxTokens, _ = strconv.Atoi(value)
	case SummarizerCommand:
		c.SummarizerCommand = value
	case ResidentChannelID:
		c.ResidentChannelID, _ = strconv.ParseInt(value, 10, 64)
	case AllowedChannelIDs:
		c.AllowedChannelIDs, _ = parseIDList(value)
	case MetricsAddr:
		c.MetricsAddr = value
	case ExportBucket:
		c.ExportBucket = value
	case ExportPrefix:
		c.ExportPrefix = strings.Trim(value, "/")
	}
	return nil
}

func validate(o Option, v string) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %s: %w", o, fmt.Sprintf(format, args...), ErrInvalidValue)
	}

	switch o {
	case DataDir, DefaultSystemPrompt, SummarizerModel:
		if strings.TrimSpace(v) == "" {
			return invalid("must not be empty")
		}
	case CompactionTime:
		if _, err := compaction.ParseTimeOfDay(v); err != nil {
			return invalid("%v", err)
		}
	case CompactionConcurrency:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxConcurrency {
			return invalid("must be an integer between 1 and %d", maxConcurrency)
		}
	case LockTimeout:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return invalid("must be a positive duration such as 30s")
		}
	case Summarizer:
		if v != BackendAnthropic && v != BackendCommand {
			return invalid("must be %q or %q", BackendAnthropic, BackendCommand)
		}
	case SummarizerMaxTokens:
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return invalid("must be a positive integer")
		}
	case ResidentChannelID:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return invalid("must be a non-negative integer")
		}
	case AllowedChannelIDs:
		if _, err := parseIDList(v); err != nil {
			return invalid("%v", err)
		}
	case MetricsAddr:
		if v != "" && !strings.Contains(v, ":") {
			return invalid("must be host:port")
		}
	}
	return nil
}

func parseIDList(v string) ([]int64, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("%q is not a channel id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// At returns the parsed compaction time.
func (c *Config) At() compaction.TimeOfDay {
	at, err := compaction.ParseTimeOfDay(c.CompactionTime)
	if err != nil {
		return compaction.TimeOfDay{Hour: 3}
	}
	return at
}

// Lock returns the parsed lock timeout.
func (c *Config) Lock() time.Duration {
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ChannelAllowed reports whether a chat frontend should record traffic from
// channel id. The resident channel is always allowed; an empty allow list
// admits every channel.
func (c *Config) ChannelAllowed(id int64) bool {
	if c.ResidentChannelID != 0 && id == c.ResidentChannelID {
		return true
	}
	if len(c.AllowedChannelIDs) == 0 {
		return true
	}
	return slices.Contains(c.AllowedChannelIDs, id)
}
