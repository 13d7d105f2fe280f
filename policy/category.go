// Package policy holds the static table that maps each cached category to
// its fixed key prefix and its TTL policy.
package policy

import "time"

// Policy is the caching policy of a category. Zero TTLs mean "use the
// cache-wide default".
type Policy struct {
	FreshTTL time.Duration
	StaleTTL time.Duration
	// Jitter is the TTL jitter ratio in [0, 1] applied to FreshTTL on
	// every write. Zero disables jitter.
	Jitter float64
}

// CategoryBuilder constructs a category with its key prefix and policy.
type CategoryBuilder struct {
	name   string
	prefix string
	policy Policy
}

// Category starts building a category with the given name. The name is
// the logical cache label used in logs, metrics, and invalidation targets.
func Category(name string) *CategoryBuilder {
	return &CategoryBuilder{name: name}
}

// Prefix sets the key prefix owned by the category.
func (c *CategoryBuilder) Prefix(prefix string) *CategoryBuilder {
	c.prefix = prefix
	return c
}

// Policy attaches p to the category.
func (c *CategoryBuilder) Policy(p Policy) *CategoryBuilder {
	c.policy = p
	return c
}

// Entry is a resolved, immutable category.
type Entry struct {
	Name   string
	Prefix string
	Policy Policy
}

func (c *CategoryBuilder) entry() Entry {
	return Entry{Name: c.name, Prefix: c.prefix, Policy: c.policy}
}
