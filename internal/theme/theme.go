package theme

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// StorageKey is the preference key the theme is persisted under.
const StorageKey = "theme"

const storageTimeout = 2 * time.Second

func Parse(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	default:
		return "", fmt.Errorf("invalid theme %q (expected light or dark)", raw)
	}
}

func (t Theme) Valid() bool {
	return t == Light || t == Dark
}

func (t Theme) Toggled() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Storage is the persistent key/value surface the theme is written to.
type Storage interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}

// State is the theme cell. Persistence is best-effort: storage errors are
// logged at debug level and the in-memory value stays authoritative.
type State struct {
	mu      sync.Mutex
	storage Storage
	logger  *slog.Logger
	current Theme
	nextID  int
	subs    map[int]func(Theme)
	order   []int
}

func NewState(storage Storage, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &State{storage: storage, logger: logger, current: Light, subs: map[int]func(Theme){}}
	if storage == nil {
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	raw, ok, err := storage.GetPreference(ctx, StorageKey)
	if err != nil {
		logger.Debug("theme storage unavailable", "error", err)
		return s
	}
	if !ok {
		return s
	}
	stored, err := Parse(raw)
	if err != nil {
		logger.Debug("ignoring stored theme", "value", raw, "error", err)
		return s
	}
	s.current = stored
	return s
}

func (s *State) Get() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set updates the theme, persists it and notifies subscribers. Every call
// writes through to storage, even when the value is unchanged. Values other
// than Light and Dark are rejected and leave the state untouched.
func (s *State) Set(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("invalid theme %q (expected light or dark)", string(t))
	}
	s.mu.Lock()
	s.current = t
	subs := make([]func(Theme), 0, len(s.order))
	for _, id := range s.order {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	s.persist(t)
	for _, fn := range subs {
		fn(t)
	}
	return nil
}

func (s *State) Toggle() Theme {
	next := s.Get().Toggled()
	_ = s.Set(next)
	return next
}

func (s *State) Subscribe(fn func(Theme)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *State) persist(t Theme) {
	if s.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.storage.SetPreference(ctx, StorageKey, string(t)); err != nil {
		s.logger.Debug("failed to persist theme", "theme", string(t), "error", err)
	}
}
