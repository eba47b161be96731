package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"quakebot/pkg/logx"
)

// Overrides are the operational knobs that may change at runtime.
// All durations are Go duration strings.
type Overrides struct {
	Logging LoggingOverrides `yaml:"logging"`
	Prune   PruneOverrides   `yaml:"prune"`
	// SendRatePerSec bounds outbound Telegram sends; 0 disables limiting.
	SendRatePerSec int `yaml:"send_rate_per_sec"`
}

type LoggingOverrides struct {
	Level   string `yaml:"level"`
	Console *bool  `yaml:"console"`
	File    struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"file"`
	Telegram struct {
		Enabled    bool   `yaml:"enabled"`
		MinLevel   string `yaml:"min_level"`
		RatePerSec int    `yaml:"rate_per_sec"`
	} `yaml:"telegram"`
}

// PruneOverrides configure artifact cleanup in continuous mode.
type PruneOverrides struct {
	// Schedule is a cron expression; empty disables pruning.
	Schedule string `yaml:"schedule"`
	// Retention is how long rendered maps are kept (default 720h).
	Retention string `yaml:"retention"`
}

// RetentionDuration parses the retention window with its default.
func (p PruneOverrides) RetentionDuration() (time.Duration, error) {
	s := strings.TrimSpace(p.Retention)
	if s == "" {
		return 720 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("prune.retention: invalid duration %q: %w", p.Retention, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("prune.retention: duration must be > 0")
	}
	return d, nil
}

// LogConfig translates the overrides into the logx configuration, applying
// the env-provided default level when the file doesn't set one.
func (o Overrides) LogConfig(defaultLevel string) logx.Config {
	cfg := logx.Config{Level: defaultLevel, Console: true}
	if o.Logging.Level != "" {
		cfg.Level = o.Logging.Level
	}
	if o.Logging.Console != nil {
		cfg.Console = *o.Logging.Console
	}
	cfg.File.Enabled = o.Logging.File.Enabled
	cfg.File.Path = o.Logging.File.Path
	cfg.Telegram.Enabled = o.Logging.Telegram.Enabled
	cfg.Telegram.MinLevel = o.Logging.Telegram.MinLevel
	cfg.Telegram.RatePerSec = o.Logging.Telegram.RatePerSec
	return cfg
}

// LoadOverrides reads the YAML overrides file. A missing path yields the
// zero value: env defaults stay in effect.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	if strings.TrimSpace(path) == "" {
		return o, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return Overrides{}, fmt.Errorf("overrides %s: %w", path, err)
	}
	return o, nil
}

// Watch re-reads the overrides file on change and hands the result to apply.
// Write events are debounced so editors that save in multiple steps trigger
// one reload. Returns when ctx is done.
func Watch(ctx context.Context, path string, log logx.Logger, apply func(Overrides)) error {
	if strings.TrimSpace(path) == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			o, err := LoadOverrides(path)
			if err != nil {
				log.Warn("overrides reload failed", logx.String("path", path), logx.Err(err))
				return
			}
			log.Info("overrides reloaded", logx.String("path", path))
			apply(o)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				log.Warn("overrides watch error", logx.Err(err))
			}
		}
	}
}
