package provider

import (
	"fmt"
	"slices"
	"sort"

	"genrouter/internal/core"
)

// capabilityReporter is implemented by wrappers that satisfy every adapter
// interface but only forward the kinds their inner adapter supports.
type capabilityReporter interface {
	Supports(kind core.RequestKind) bool
}

// supports reports whether adapter can serve kind, asking wrappers for
// their inner capabilities.
func supports(adapter core.Adapter, kind core.RequestKind) bool {
	if r, ok := adapter.(capabilityReporter); ok {
		return r.Supports(kind)
	}
	switch kind {
	case core.KindText:
		_, ok := adapter.(core.TextAdapter)
		return ok
	case core.KindImage:
		_, ok := adapter.(core.ImageAdapter)
		return ok
	case core.KindVideo:
		_, ok := adapter.(core.VideoAdapter)
		return ok
	}
	return false
}

type slot struct {
	provider string
	kind     core.RequestKind
}

// Table is the dispatch table from (provider, kind) to adapter. It is built
// once at startup and read-only afterwards.
type Table struct {
	text      map[string]core.TextAdapter
	image     map[string]core.ImageAdapter
	video     map[string]core.VideoAdapter
	providers map[string][]core.Adapter
	entries   []slot
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{
		text:      make(map[string]core.TextAdapter),
		image:     make(map[string]core.ImageAdapter),
		video:     make(map[string]core.VideoAdapter),
		providers: make(map[string][]core.Adapter),
	}
}

// Register binds adapter to (provider, kind). It fails when the slot is
// already taken or the adapter lacks the capability for kind.
func (t *Table) Register(provider string, kind core.RequestKind, adapter core.Adapter) error {
	if provider == "" {
		return fmt.Errorf("provider name is required")
	}
	if adapter == nil {
		return fmt.Errorf("adapter for %s/%s is nil", provider, kind)
	}
	if r, ok := adapter.(capabilityReporter); ok && !r.Supports(kind) {
		return fmt.Errorf("adapter %s cannot serve %s requests", adapter.Name(), kind)
	}

	switch kind {
	case core.KindText:
		a, ok := adapter.(core.TextAdapter)
		if !ok {
			return fmt.Errorf("adapter %s cannot serve text requests", adapter.Name())
		}
		if _, dup := t.text[provider]; dup {
			return fmt.Errorf("duplicate registration for %s/%s", provider, kind)
		}
		t.text[provider] = a
	case core.KindImage:
		a, ok := adapter.(core.ImageAdapter)
		if !ok {
			return fmt.Errorf("adapter %s cannot serve image requests", adapter.Name())
		}
		if _, dup := t.image[provider]; dup {
			return fmt.Errorf("duplicate registration for %s/%s", provider, kind)
		}
		t.image[provider] = a
	case core.KindVideo:
		a, ok := adapter.(core.VideoAdapter)
		if !ok {
			return fmt.Errorf("adapter %s cannot serve video requests", adapter.Name())
		}
		if _, dup := t.video[provider]; dup {
			return fmt.Errorf("duplicate registration for %s/%s", provider, kind)
		}
		t.video[provider] = a
	default:
		return fmt.Errorf("unknown request kind %q", kind)
	}

	if !slices.Contains(t.providers[provider], adapter) {
		t.providers[provider] = append(t.providers[provider], adapter)
	}
	t.entries = append(t.entries, slot{provider: provider, kind: kind})
	return nil
}

// MustRegister is Register that panics on error.
func (t *Table) MustRegister(provider string, kind core.RequestKind, adapter core.Adapter) {
	if err := t.Register(provider, kind, adapter); err != nil {
		panic(err)
	}
}

// Text returns the text adapter of provider.
func (t *Table) Text(provider string) (core.TextAdapter, bool) {
	a, ok := t.text[provider]
	return a, ok
}

// Image returns the image adapter of provider.
func (t *Table) Image(provider string) (core.ImageAdapter, bool) {
	a, ok := t.image[provider]
	return a, ok
}

// Video returns the video adapter of provider.
func (t *Table) Video(provider string) (core.VideoAdapter, bool) {
	a, ok := t.video[provider]
	return a, ok
}

// Providers returns every registered provider with its distinct adapters.
func (t *Table) Providers() map[string][]core.Adapter {
	out := make(map[string][]core.Adapter, len(t.providers))
	for name, adapters := range t.providers {
		out[name] = slices.Clone(adapters)
	}
	return out
}

// Describe lists "provider/kind" for every registration, sorted.
func (t *Table) Describe() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.provider+"/"+string(e.kind))
	}
	sort.Strings(out)
	return out
}
