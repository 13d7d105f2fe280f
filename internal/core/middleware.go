// Package core orders the admin server's middleware.
package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// middleware is a single unary interceptor with a deterministic execution
// order. Lower Order values run first.
type middleware struct {
	Unary grpc.UnaryServerInterceptor
	Name  string
	Order int
}

// MiddlewareBuilder collects middleware entries and produces a sorted
// interceptor slice ready for chaining.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a named interceptor with the given order. Adding a name
// that is already present replaces the earlier entry, so enabling a
// built-in twice does not run it twice. An empty name never replaces.
func (b *MiddlewareBuilder) Add(order int, name string, unary grpc.UnaryServerInterceptor) {
	if unary == nil {
		return
	}
	if name != "" {
		b.entries = slices.DeleteFunc(b.entries, func(m middleware) bool { return m.Name == name })
	}
	b.entries = append(b.entries, middleware{Unary: unary, Name: name, Order: order})
}

// Names returns the registered names in execution order. Unnamed entries
// are reported as "".
func (b *MiddlewareBuilder) Names() []string {
	sorted := b.sorted()
	names := make([]string, len(sorted))
	for i, m := range sorted {
		names[i] = m.Name
	}
	return names
}

// Build sorts the collected middleware by Order (stable) and returns the
// unary interceptors.
func (b *MiddlewareBuilder) Build() []grpc.UnaryServerInterceptor {
	sorted := b.sorted()
	unary := make([]grpc.UnaryServerInterceptor, len(sorted))
	for i, m := range sorted {
		unary[i] = m.Unary
	}
	return unary
}

func (b *MiddlewareBuilder) sorted() []middleware {
	out := slices.Clone(b.entries)
	slices.SortStableFunc(out, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
	return out
}
