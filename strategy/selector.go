package strategy

import (
	"net/url"
	"path"
	"strings"
)

// Rule pairs a URL predicate with the strategy selected when it matches.
// Rules are evaluated in order, first match wins.
type Rule struct {
	Name     string
	Match    func(u *url.URL) bool
	Strategy Strategy
}

// Selector classifies a request URL into exactly one strategy. Pure: no side
// effects, deterministic for a given rule table.
type Selector struct {
	rules    []Rule
	fallback Strategy
}

// NewSelector returns a Selector over the given ordered rule table. URLs that
// match no rule get the fallback strategy.
func NewSelector(rules []Rule, fallback Strategy) *Selector {
	return &Selector{rules: rules, fallback: fallback}
}

// Select returns the strategy for a URL.
func (s *Selector) Select(u *url.URL) Strategy {
	for _, rule := range s.rules {
		if rule.Match(u) {
			return rule.Strategy
		}
	}
	return s.fallback
}

// Rules returns the rule table, for diagnostics.
func (s *Selector) Rules() []Rule {
	return s.rules
}

// sensitiveSegments are API path segments that must never be served from or
// written to a cache.
var sensitiveSegments = []string{"auth", "settings", "admin"}

// analyticalSegments are read-heavy API path segments where a stale response
// is acceptable while a fresh one is fetched in the background.
var analyticalSegments = []string{"dashboard", "analytics", "insights"}

// staticExtensions are the file extensions treated as immutable static assets.
var staticExtensions = map[string]bool{
	".js": true, ".mjs": true, ".css": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
}

func hasSegment(u *url.URL, names []string) bool {
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		for _, name := range names {
			if seg == name {
				return true
			}
		}
	}
	return false
}

// DefaultRules returns the standard rule table for the costs-hub edge, with
// apiPrefix marking API routes (typically "/api/"):
//
//  1. API route with an auth/settings/admin segment → network-only
//  2. API route with a dashboard/analytics/insights segment → stale-while-revalidate
//  3. any other API route → network-first
//  4. static asset extension → cache-first
//
// Everything else (HTML navigations included) falls back to network-first.
func DefaultRules(apiPrefix string) []Rule {
	isAPI := func(u *url.URL) bool {
		return strings.HasPrefix(u.Path, apiPrefix)
	}
	return []Rule{
		{
			Name: "sensitive-api",
			Match: func(u *url.URL) bool {
				return isAPI(u) && hasSegment(u, sensitiveSegments)
			},
			Strategy: NetworkOnly,
		},
		{
			Name: "analytical-api",
			Match: func(u *url.URL) bool {
				return isAPI(u) && hasSegment(u, analyticalSegments)
			},
			Strategy: StaleWhileRevalidate,
		},
		{
			Name:     "api",
			Match:    isAPI,
			Strategy: NetworkFirst,
		},
		{
			Name: "static-asset",
			Match: func(u *url.URL) bool {
				return staticExtensions[strings.ToLower(path.Ext(u.Path))]
			},
			Strategy: CacheFirst,
		},
	}
}

// NewDefaultSelector returns a Selector over DefaultRules with the
// network-first fallback.
func NewDefaultSelector(apiPrefix string) *Selector {
	return NewSelector(DefaultRules(apiPrefix), NetworkFirst)
}
