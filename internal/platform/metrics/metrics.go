// Package metrics pushes batch job metrics to a Prometheus Pushgateway.
// Batch jobs exit before a scraper would see them, so they push once at the
// end of the run instead of serving /metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/basic-cleaning/internal/platform/env"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Config struct {
	// PushgatewayURL is optional. Pushing is disabled when empty.
	PushgatewayURL string
	Job            string
	Timeout        time.Duration
}

func ConfigFromEnv(job string) (Config, error) {
	timeout, err := env.Duration("ANIMUS_PUSHGATEWAY_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		PushgatewayURL: strings.TrimSpace(env.String("ANIMUS_PUSHGATEWAY_URL", "")),
		Job:            job,
		Timeout:        timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.PushgatewayURL) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Job) == "" {
		return errors.New("job is required")
	}
	if c.Timeout <= 0 {
		return errors.New("pushgateway timeout must be positive")
	}
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.PushgatewayURL)
	if err != nil {
		return fmt.Errorf("parse pushgateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("pushgateway url must be http or https: %q", c.PushgatewayURL)
	}
	if u.Host == "" {
		return fmt.Errorf("pushgateway url must include a host: %q", c.PushgatewayURL)
	}
	return nil
}

// Pusher owns the registry of one job run.
type Pusher struct {
	cfg      Config
	registry *prometheus.Registry
	grouping map[string]string
}

func NewPusher(cfg Config) *Pusher {
	return &Pusher{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		grouping: map[string]string{},
	}
}

func (p *Pusher) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Group adds a grouping label to the pushed metric group.
func (p *Pusher) Group(name, value string) {
	if p == nil {
		return
	}
	p.grouping[name] = value
}

// Push replaces the job's metric group on the gateway. It is a no-op when no
// gateway is configured.
func (p *Pusher) Push(ctx context.Context) error {
	if p == nil || !p.cfg.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	pusher := push.New(p.cfg.PushgatewayURL, p.cfg.Job).
		Gatherer(p.registry).
		Client(&http.Client{Timeout: p.cfg.Timeout})
	for name, value := range p.grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
