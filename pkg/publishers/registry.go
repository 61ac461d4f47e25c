package publishers

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Builder constructs a sink from its config entry.
type Builder func(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error)

// Registry maps a publisher type to the builder for it. Keys are lowercase.
type Registry map[string]Builder

// DefaultRegistry knows every sink type the publishers file accepts.
func DefaultRegistry() Registry {
	return Registry{
		TypeHTTP:   newHTTPPublisher,
		TypeSQS:    newSQSPublisher,
		TypeSNS:    newSNSPublisher,
		TypePubSub: newPubSubPublisher,
	}
}

// Register adds or replaces the builder for typ. Blank types and nil
// builders are ignored.
func (r Registry) Register(typ string, builder Builder) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || builder == nil {
		return
	}
	r[typ] = builder
}

// Types lists the registered types in sorted order.
func (r Registry) Types() []string {
	out := make([]string, 0, len(r))
	for typ := range r {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Build constructs the publisher described by cfg.
func (r Registry) Build(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("publisher %q has no type configured", cfg.ID)
	}
	builder, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("publisher %q: unknown type %q (known: %s)", cfg.ID, cfg.Type, strings.Join(r.Types(), ", "))
	}
	pub, err := builder(ctx, cfg, ensureLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build %s publisher %q: %w", typ, cfg.ID, err)
	}
	return pub, nil
}

// BuildAll constructs every config in order. On failure the publishers built
// so far are closed and the error is returned.
func BuildAll(ctx context.Context, reg Registry, cfgs []PublisherConfig, log Logger) ([]Publisher, error) {
	if len(reg) == 0 || len(cfgs) == 0 {
		return nil, nil
	}

	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := reg.Build(ctx, cfg, log)
		if err != nil {
			_ = closeAll(pubs)
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}
