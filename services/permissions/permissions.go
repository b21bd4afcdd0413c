// Package permissions implements dot-separated permission matching with
// segment wildcards: "orders.*" allows "orders.create" and "orders.export.csv"
// but never "ordersx.create". "*" alone allows everything.
package permissions

import "strings"

type Set struct {
	all      bool
	exact    map[string]struct{}
	prefixes map[string]struct{}
}

func New(perms ...string) *Set {
	s := &Set{
		exact:    make(map[string]struct{}),
		prefixes: make(map[string]struct{}),
	}

	for _, perm := range perms {
		switch {
		case perm == "*":
			s.all = true
		case strings.HasSuffix(perm, ".*"):
			s.prefixes[strings.TrimSuffix(perm, ".*")] = struct{}{}
		case perm != "":
			s.exact[perm] = struct{}{}
		}
	}

	return s
}

func (s *Set) Allows(perm string) bool {
	if perm == "" {
		return false
	}
	if s.all {
		return true
	}
	if _, ok := s.exact[perm]; ok {
		return true
	}

	// Walk ancestor segments: "orders.export.csv" checks "orders.export"
	// then "orders".
	for {
		idx := strings.LastIndex(perm, ".")
		if idx < 0 {
			return false
		}
		perm = perm[:idx]
		if _, ok := s.prefixes[perm]; ok {
			return true
		}
	}
}

// defaultRoleSets is the built-in role grant table for the surrounding
// commerce API. Callers with their own role model supply Sets directly.
var defaultRoleSets = map[string]*Set{
	"admin":   New("*"),
	"manager": New("products.*", "orders.*", "customers.*", "warehouses.*", "reports.read"),
	"staff":   New("products.read", "orders.read", "orders.create", "customers.read", "warehouses.read"),
	"customer": New(
		"orders.create", "orders.read", "products.read",
	),
}

// ForRole returns the grant set for a role. Unknown roles get an empty set,
// never nil.
func ForRole(role string) *Set {
	if set, ok := defaultRoleSets[role]; ok {
		return set
	}
	return New()
}
