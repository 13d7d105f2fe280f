package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyName is returned for a category without a name.
	ErrEmptyName = errors.New("policy: category name is empty")
	// ErrEmptyPrefix is returned for a category without a key prefix.
	ErrEmptyPrefix = errors.New("policy: category prefix is empty")
	// ErrDuplicate is returned when two categories share a name or prefix.
	ErrDuplicate = errors.New("policy: duplicate category")
)

// Table is the category table. It is built once and never mutated, so it
// is safe for concurrent use.
type Table struct {
	entries []Entry
	byName  map[string]Entry
}

// NewTable validates the categories and builds a table. Names and prefixes
// must be non-empty and unique.
func NewTable(categories ...*CategoryBuilder) (*Table, error) {
	t := &Table{byName: make(map[string]Entry, len(categories))}
	prefixes := make(map[string]struct{}, len(categories))

	for _, c := range categories {
		e := c.entry()
		if e.Name == "" {
			return nil, ErrEmptyName
		}
		if e.Prefix == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyPrefix, e.Name)
		}
		if _, ok := t.byName[e.Name]; ok {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicate, e.Name)
		}
		if _, ok := prefixes[e.Prefix]; ok {
			return nil, fmt.Errorf("%w: prefix %q", ErrDuplicate, e.Prefix)
		}
		prefixes[e.Prefix] = struct{}{}
		t.byName[e.Name] = e
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// MustTable is like NewTable but panics on error. It is meant for
// package-level tables.
func MustTable(categories ...*CategoryBuilder) *Table {
	t, err := NewTable(categories...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the category registered under name.
func (t *Table) Lookup(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.byName[name]
	return e, ok
}

// Resolve finds the category owning key. The longest matching prefix wins.
func (t *Table) Resolve(key string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	var best Entry
	found := false
	for _, e := range t.entries {
		if strings.HasPrefix(key, e.Prefix) && (!found || len(e.Prefix) > len(best.Prefix)) {
			best = e
			found = true
		}
	}
	return best, found
}

// Key builds a cache key for the named category by appending parts to its
// prefix, separated by ":".
func (t *Table) Key(name string, parts ...string) (string, error) {
	e, ok := t.Lookup(name)
	if !ok {
		return "", fmt.Errorf("policy: unknown category %q", name)
	}
	return e.Prefix + strings.Join(parts, ":"), nil
}

// Entries returns the categories in registration order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
