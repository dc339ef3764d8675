package config

import "sync/atomic"

// Holder provides concurrency-safe access to the current Config with
// support for reloading from disk. A failed reload keeps the old config.
type Holder struct {
	current  atomic.Pointer[Config]
	yamlPath string
}

// NewHolder wraps cfg for shared access. yamlPath is re-read on Reload.
func NewHolder(cfg *Config, yamlPath string) *Holder {
	h := &Holder{yamlPath: yamlPath}
	h.current.Store(cfg)
	return h
}

// Get returns the current config snapshot.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// Reload re-runs the full load pipeline and swaps in the result.
// On error the previous config stays active.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.yamlPath)
	if err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}
