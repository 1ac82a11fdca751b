package sections

import (
	"bytes"
	"context"
	"encoding/json"
)

// RosterProvider exposes a feature's live course roster, if it has one.
type RosterProvider interface {
	Roster() (json.RawMessage, bool)
}

// RosterFunc adapts a function to RosterProvider.
type RosterFunc func() (json.RawMessage, bool)

func (f RosterFunc) Roster() (json.RawMessage, bool) { return f() }

func FeatureKey(feature string) string {
	return "feature:" + feature
}

// FeatureCache reads a feature's persisted state. Corrupt entries read as
// absent.
func (s *Store) FeatureCache(ctx context.Context, feature string) (json.RawMessage, bool) {
	raw, ok, err := s.cache.Get(ctx, FeatureKey(feature))
	if err != nil {
		s.logger.Warn("read feature cache", "feature", feature, "error", err)
		return nil, false
	}
	return raw, ok
}

func (s *Store) SaveFeatureCache(ctx context.Context, feature string, value json.RawMessage) error {
	return s.cache.Put(ctx, FeatureKey(feature), value)
}

// Hydrate resolves a feature's roster: the live provider first, then the
// feature's persisted cache, then nothing.
func (s *Store) Hydrate(ctx context.Context, feature string, live RosterProvider) (json.RawMessage, bool) {
	if live != nil {
		if roster, ok := live.Roster(); ok && !isEmptyJSON(roster) {
			return roster, true
		}
	}
	raw, ok := s.FeatureCache(ctx, feature)
	if !ok || isEmptyJSON(raw) {
		return nil, false
	}
	return raw, true
}

// HydrateForeign writes value into another feature's cache only when that
// cache is absent or empty. It reports whether it wrote.
func (s *Store) HydrateForeign(ctx context.Context, feature string, value json.RawMessage) (bool, error) {
	if isEmptyJSON(value) {
		return false, nil
	}
	if existing, ok := s.FeatureCache(ctx, feature); ok && !isEmptyJSON(existing) {
		return false, nil
	}
	if err := s.SaveFeatureCache(ctx, feature, value); err != nil {
		return false, err
	}
	s.logger.Debug("hydrated feature cache", "feature", feature)
	return true, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}
