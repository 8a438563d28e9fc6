package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	logx "attendbot/pkg/logx"
)

// ConfigManager owns the config file: it loads it strictly at startup and,
// once Watch runs, re-reads it on change, validates the candidate and fans
// the accepted config out to subscribers. A rejected candidate leaves the
// last good config in place.
type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
	// lastHash is the content hash of the committed config; editors fire
	// several fs events per save and only one reload should get through.
	lastHash uint64

	// subsMu guards the subscriber list so publish never races Unsubscribe
	// closing a channel.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the hook Watch runs before committing a reload.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Load reads, decodes and commits the config file. The decode is strict:
// unknown fields, trailing data and malformed YAML all fail.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toJSON(m.path, raw)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// toJSON lets .yaml/.yml configs share the strict JSON decoder: the YAML
// document is unmarshalled generically, keys coerced to strings and the
// result re-marshalled as JSON.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return j, nil
}

func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

func (m *ConfigManager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Get returns the last committed config.
func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs[i] = m.subs[len(m.subs)-1]
			m.subs = m.subs[:len(m.subs)-1]
			close(ch)
			return
		}
	}
}

// publish delivers cfg to every subscriber, latest-wins: a full buffer has
// its oldest entry dropped so the newest config still lands.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

const (
	reloadDebounce   = 250 * time.Millisecond
	watchRetryMin    = 250 * time.Millisecond
	watchRetryMax    = 5 * time.Second
	validatorTimeout = 5 * time.Second
)

// Watch re-reads the config whenever the file changes, until ctx is
// cancelled. The watcher is recreated with backoff when it breaks, so a
// transient fs problem never permanently disables hot reload.
func (m *ConfigManager) Watch(ctx context.Context) error {
	backoff := watchRetryMin
	for {
		started := time.Now()
		if err := m.watchOnce(ctx); err != nil {
			m.log.Warn("config watcher stopped; restarting",
				logx.Err(err), logx.Duration("backoff", backoff))
		}
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > time.Minute {
			backoff = watchRetryMin
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > watchRetryMax {
			backoff = watchRetryMax
		}
	}
}

// watchOnce runs one watcher lifetime; a nil error means ctx ended it.
func (m *ConfigManager) watchOnce(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("file", m.path))

	// Saves arrive as bursts of partial writes; reload once, shortly after
	// the burst settles.
	var timerMu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() { m.reload(ctx) })
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				scheduleReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("error channel closed")
			}
			if err == nil {
				continue
			}
			// An overflow means missed events; reload once and keep going.
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				scheduleReload()
				continue
			}
			return err
		}
	}
}

// reload parses the file and, when the content actually changed and the
// validator accepts it, commits and publishes.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.parse()
	if err != nil {
		m.log.Warn("config reload parse failed; keeping previous", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validatorTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config reload rejected; keeping previous", logx.Err(err))
			return
		}
	}

	m.commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded from disk", logx.String("path", m.path))
}
