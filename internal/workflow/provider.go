package workflow

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
)

// Provider hands out the current workflow configuration. Callers take one
// snapshot per request and use it throughout.
type Provider interface {
	Current() *Config
}

// StaticProvider always returns the same configuration.
type StaticProvider struct {
	cfg *Config
}

// NewStaticProvider wraps a fixed configuration.
func NewStaticProvider(cfg *Config) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

func (p *StaticProvider) Current() *Config {
	return p.cfg
}

// ReloadableProvider re-reads its file on demand. A failed reload keeps the
// previous configuration.
type ReloadableProvider struct {
	path    string
	log     *logger.Logger
	current atomic.Pointer[Config]
}

// NewReloadableProvider loads path (or the default when empty).
func NewReloadableProvider(path string, log *logger.Logger) (*ReloadableProvider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := &ReloadableProvider{path: path, log: log}
	p.current.Store(cfg)
	return p, nil
}

func (p *ReloadableProvider) Current() *Config {
	return p.current.Load()
}

// Reload loads and validates the file, then swaps it in.
func (p *ReloadableProvider) Reload() error {
	cfg, err := Load(p.path)
	if err != nil {
		p.log.Error().Err(err).Str("path", p.path).Msg("Workflow config reload failed, keeping previous config")
		return err
	}
	p.current.Store(cfg)
	p.log.Info().Str("path", p.path).Msg("Workflow config reloaded")
	return nil
}

// Watch reloads on every signal received until ctx is done.
func (p *ReloadableProvider) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			_ = p.Reload()
		}
	}
}
