package tracker

import (
	"fmt"
	"sort"
	"sync"

	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

// Registry holds one tracker per mode. Modes never share state.
type Registry struct {
	mu       sync.RWMutex
	trackers map[models.Mode]*Tracker
	def      models.Mode
}

// NewRegistry creates an empty registry whose default mode is def.
func NewRegistry(def models.Mode) *Registry {
	return &Registry{
		trackers: make(map[models.Mode]*Tracker),
		def:      def,
	}
}

// Register adds t, replacing any tracker already registered for its mode.
func (r *Registry) Register(t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[t.Mode()] = t
}

// Default returns the mode used when none is requested.
func (r *Registry) Default() models.Mode {
	return r.def
}

// Get returns the tracker for mode.
func (r *Registry) Get(mode models.Mode) (*Tracker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownMode, mode)
	}
	return t, nil
}

// Lookup resolves a mode name, falling back to the default mode when name
// is empty.
func (r *Registry) Lookup(name string) (*Tracker, error) {
	if name == "" {
		return r.Get(r.def)
	}
	mode, err := models.ParseMode(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownMode, name)
	}
	return r.Get(mode)
}

// Modes lists the registered modes in name order.
func (r *Registry) Modes() []models.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]models.Mode, 0, len(r.trackers))
	for m := range r.trackers {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// Close closes every tracker and returns the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for mode, t := range r.trackers {
		if err := t.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s tracker: %w", mode, err)
		}
	}
	return first
}
