// Package gateway implements the edge router: it classifies each inbound
// request against a static route table, verifies bearer tokens on protected
// routes and forwards the request to the route's backend.
package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"taskboard/internal/config"
)

const wildcardSuffix = "/**"

// Route is a resolved route table entry.
type Route struct {
	Name         string
	Pattern      string
	RequiresAuth bool
	Backend      *url.URL

	prefix string // set for "/**" patterns
}

func (r *Route) matches(path string) bool {
	if r.prefix == "" {
		return path == r.Pattern
	}
	return path == r.prefix || strings.HasPrefix(path, r.prefix+"/")
}

// Table is an immutable route table. Exact patterns are tried before
// wildcard patterns and longer wildcard prefixes before shorter ones.
type Table struct {
	routes []*Route
}

// NewTable resolves route specs against the backend map.
func NewTable(specs []config.RouteSpec, backends map[string]string) (*Table, error) {
	seen := make(map[string]bool, len(specs))
	routes := make([]*Route, 0, len(specs))

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("route with pattern %q has no name", spec.Path)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate route name %q", spec.Name)
		}
		seen[spec.Name] = true

		if !strings.HasPrefix(spec.Path, "/") {
			return nil, fmt.Errorf("route %s: pattern %q must start with /", spec.Name, spec.Path)
		}

		rawURL, ok := backends[spec.Backend]
		if !ok {
			return nil, fmt.Errorf("route %s: unknown backend %q", spec.Name, spec.Backend)
		}
		target, err := url.Parse(rawURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: invalid backend URL %q", spec.Name, rawURL)
		}

		route := &Route{
			Name:         spec.Name,
			Pattern:      spec.Path,
			RequiresAuth: spec.RequiresAuth,
			Backend:      target,
		}
		if strings.HasSuffix(spec.Path, wildcardSuffix) {
			route.prefix = strings.TrimSuffix(spec.Path, wildcardSuffix)
		} else if strings.Contains(spec.Path, "*") {
			return nil, fmt.Errorf("route %s: only a trailing /** wildcard is supported", spec.Name)
		}
		routes = append(routes, route)
	}

	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if (a.prefix == "") != (b.prefix == "") {
			return a.prefix == ""
		}
		return len(a.prefix) > len(b.prefix)
	})

	return &Table{routes: routes}, nil
}

// Match returns the route for path, if any.
func (t *Table) Match(path string) (*Route, bool) {
	for _, r := range t.routes {
		if r.matches(path) {
			return r, true
		}
	}
	return nil, false
}

// Routes returns the entries in match order.
func (t *Table) Routes() []*Route {
	out := make([]*Route, len(t.routes))
	copy(out, t.routes)
	return out
}
