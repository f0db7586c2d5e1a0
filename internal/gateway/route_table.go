/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Target identifies the service that serves a route.
type Target string

// Route targets.
const (
	TargetGateway  Target = "gateway"
	TargetIdentity Target = "identity"
	TargetOrders   Target = "orders"
)

// RouteEntry describes a path prefix served by a target.
type RouteEntry struct {
	Prefix       string
	Target       Target
	Methods      []string
	RequiresAuth bool
}

// AllowsMethod reports whether the route accepts the HTTP method. Empty Methods allows any method.
func (e RouteEntry) AllowsMethod(method string) bool {
	if len(e.Methods) == 0 {
		return true
	}
	for _, m := range e.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func (e RouteEntry) matches(path string) bool {
	if !strings.HasPrefix(path, e.Prefix) {
		return false
	}
	return len(path) == len(e.Prefix) || path[len(e.Prefix)] == '/'
}

// DefaultRoutes returns the static route table of the task-management stack.
func DefaultRoutes() []RouteEntry {
	crud := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	return []RouteEntry{
		{Prefix: "/health", Target: TargetGateway, Methods: []string{http.MethodGet}},
		{Prefix: "/v1/auth", Target: TargetIdentity, Methods: []string{http.MethodPost}},
		{Prefix: "/v1/users", Target: TargetIdentity, Methods: crud, RequiresAuth: true},
		{Prefix: "/v1/orders", Target: TargetOrders, Methods: crud, RequiresAuth: true},
		{Prefix: "/v1/admin/orders", Target: TargetOrders, Methods: []string{http.MethodGet}, RequiresAuth: true},
	}
}

// RouteTable resolves request paths to route entries. It is read-only after creation.
type RouteTable struct {
	// entries are sorted by prefix length in descending order, so the first match is the longest one.
	entries []RouteEntry
}

// NewRouteTable creates a new RouteTable.
func NewRouteTable(entries []RouteEntry) (*RouteTable, error) {
	sorted := make([]RouteEntry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Prefix, "/") {
			return nil, fmt.Errorf("route prefix %q should start with /", e.Prefix)
		}
		e.Prefix = "/" + strings.Trim(e.Prefix, "/")
		if _, ok := seen[e.Prefix]; ok {
			return nil, fmt.Errorf("duplicate route prefix %q", e.Prefix)
		}
		seen[e.Prefix] = struct{}{}
		switch e.Target {
		case TargetGateway, TargetIdentity, TargetOrders:
		default:
			return nil, fmt.Errorf("route %q has unknown target %q", e.Prefix, e.Target)
		}
		sorted = append(sorted, e)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RouteTable{entries: sorted}, nil
}

// Resolve returns the entry with the longest prefix matching the path on segment boundaries.
// "/v1/orders" matches "/v1/orders" and "/v1/orders/42" but not "/v1/ordersX".
func (t *RouteTable) Resolve(path string) (RouteEntry, bool) {
	for _, e := range t.entries {
		if e.matches(path) {
			return e, true
		}
	}
	return RouteEntry{}, false
}

// Prefixes returns route prefixes of the table.
func (t *RouteTable) Prefixes() []string {
	prefixes := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		prefixes = append(prefixes, e.Prefix)
	}
	return prefixes
}
