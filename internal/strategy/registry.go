// Package strategy maps recipe identifiers onto the task-planning strategies
// being compared.
package strategy

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Entry is a known strategy with its display label.
type Entry struct {
	Key   string
	Label string
}

// Rule assigns Key to every recipe containing Pattern.
type Rule struct {
	Pattern string
	Key     string
}

// Registry resolves recipes to strategy keys with an ordered rule list. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	entries []Entry
	labels  map[string]string
	rules   []Rule
	exclude []string
}

// NewRegistry validates and builds a Registry. The order of entries is the
// output order of every report. When rules is empty each entry matches its
// own key. Recipes containing any exclude pattern are ignored by callers.
func NewRegistry(entries []Entry, rules []Rule, exclude []string) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("strategy: registry needs at least one entry")
	}

	labels := make(map[string]string, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("strategy: entry with empty key")
		}
		if _, dup := labels[e.Key]; dup {
			return nil, fmt.Errorf("strategy: duplicate entry %q", e.Key)
		}
		label := e.Label
		if label == "" {
			label = e.Key
		}
		labels[e.Key] = label
	}

	if len(rules) == 0 {
		rules = make([]Rule, 0, len(entries))
		for _, e := range entries {
			rules = append(rules, Rule{Pattern: e.Key, Key: e.Key})
		}
	}
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("strategy: rule %d has an empty pattern", i)
		}
		if _, ok := labels[r.Key]; !ok {
			return nil, fmt.Errorf("strategy: rule %d (%q) targets unknown key %q", i, r.Pattern, r.Key)
		}
	}
	for _, p := range exclude {
		if p == "" {
			return nil, fmt.Errorf("strategy: empty exclude pattern")
		}
	}

	return &Registry{
		entries: append([]Entry(nil), entries...),
		labels:  labels,
		rules:   append([]Rule(nil), rules...),
		exclude: append([]string(nil), exclude...),
	}, nil
}

// Default returns the registry of the human-robot collaboration experiments.
func Default() *Registry {
	r, err := NewRegistry([]Entry{
		{Key: "COMPLETE_HA_SOLVER", Label: "Synergistic TP"},
		{Key: "RELAXED_HA_SOLVER", Label: "Relaxed S. TP"},
		{Key: "NOT_NEIGHBORING_SOLVER", Label: "Not Neighboring TP"},
		{Key: "BASIC_SOLVER", Label: "Baseline TP"},
	}, nil, nil)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the strategy key of recipe. Rules are evaluated in order;
// a recipe matched by rules of two different keys is ambiguous.
func (r *Registry) Resolve(recipe string) (string, error) {
	var key string
	for _, rule := range r.rules {
		if !strings.Contains(recipe, rule.Pattern) {
			continue
		}
		if key == "" {
			key = rule.Key
			continue
		}
		if key != rule.Key {
			return "", fmt.Errorf("strategy: recipe %q matches %s and %s: %w", recipe, key, rule.Key, domain.ErrAmbiguousStrategy)
		}
	}
	if key == "" {
		return "", fmt.Errorf("strategy: recipe %q: %w", recipe, domain.ErrUnknownStrategy)
	}
	return key, nil
}

// Excluded reports whether recipe matches an exclude pattern.
func (r *Registry) Excluded(recipe string) bool {
	for _, p := range r.exclude {
		if strings.Contains(recipe, p) {
			return true
		}
	}
	return false
}

// Keys returns the strategy keys in configured order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.Key
	}
	return keys
}

// Label returns the display label of key, or key itself when unknown.
func (r *Registry) Label(key string) string {
	if l, ok := r.labels[key]; ok {
		return l
	}
	return key
}

// Labels returns a copy of the key to label mapping.
func (r *Registry) Labels() map[string]string {
	out := make(map[string]string, len(r.labels))
	for k, v := range r.labels {
		out[k] = v
	}
	return out
}
