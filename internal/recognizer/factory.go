package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/port"
)

// BackendFactory creates a RecognitionBackend from the backend configuration.
// Factories run once at startup; expensive model loading belongs here.
type BackendFactory func(cfg *config.BackendsConfig, log *slog.Logger) (port.RecognitionBackend, error)

// registry of backend factories, populated at startup via RegisterBackend.
var backends = map[string]BackendFactory{}

// RegisterBackend registers a backend factory by name.
func RegisterBackend(name string, factory BackendFactory) {
	backends[name] = factory
}

// Registered returns the registered backend names in sorted order.
func Registered() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend creates a backend by name using the registered factory.
func NewBackend(name string, cfg *config.BackendsConfig, log *slog.Logger) (port.RecognitionBackend, error) {
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBackend, name)
	}
	return factory(cfg, log)
}

// Set is an immutable name-indexed collection of initialized backends.
type Set struct {
	byName map[string]port.RecognitionBackend
}

// NewSet indexes already constructed backends by name.
func NewSet(list ...port.RecognitionBackend) *Set {
	s := &Set{byName: make(map[string]port.RecognitionBackend, len(list))}
	for _, b := range list {
		s.byName[b.Name()] = b
	}
	return s
}

// BuildSet initializes every named backend. A backend whose initialization
// fails is kept as an unavailable placeholder so that requests naming it
// record an initialization error and fall through to the next backend.
func BuildSet(names []string, cfg *config.BackendsConfig, log *slog.Logger) (*Set, error) {
	s := &Set{byName: make(map[string]port.RecognitionBackend, len(names))}
	for _, name := range names {
		if _, dup := s.byName[name]; dup {
			continue
		}
		b, err := NewBackend(name, cfg, log)
		if err != nil {
			if _, known := backends[name]; !known {
				return nil, err
			}
			log.Warn("recognizer: backend unavailable", "backend", name, "error", err)
			b = Unavailable(name, err)
		}
		s.byName[name] = b
	}
	return s, nil
}

// Resolve returns the backends for names, in order.
func (s *Set) Resolve(names []string) ([]port.RecognitionBackend, error) {
	out := make([]port.RecognitionBackend, 0, len(names))
	for _, name := range names {
		b, ok := s.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBackend, name)
		}
		out = append(out, b)
	}
	return out, nil
}

// Names returns the backend names in the set, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type unavailableBackend struct {
	name string
	err  error
}

// Unavailable returns a backend that always fails with an initialization error.
func Unavailable(name string, err error) port.RecognitionBackend {
	return &unavailableBackend{name: name, err: err}
}

func (u *unavailableBackend) Name() string { return u.name }

func (u *unavailableBackend) Supports(string) bool { return true }

func (u *unavailableBackend) Recognize(context.Context, *domain.Page) (*domain.BackendResult, error) {
	return nil, domain.NewRecognitionError(domain.ErrorKindInitialization, u.name, u.err)
}

// Close releases backends that hold native resources. The set must not be
// used afterwards.
func (s *Set) Close() {
	for _, b := range s.byName {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
