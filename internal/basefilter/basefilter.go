// Package basefilter derives the base predicate every project query starts
// from: publication visibility by environment, and collection restriction
// by request host.
package basefilter

import (
	"strings"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// Fields the base predicate constrains.
const (
	FieldPublished   = "published"
	FieldCollections = "metadata.COLLECTIONS"
)

// Provider computes base predicates. It reads no process state; everything
// it needs is passed in.
type Provider struct {
	// Environment is the deployment environment. "production" and "prod"
	// (any case) restrict results to published projects.
	Environment string
	// Hosts maps a request host (without port) to the collection its
	// projects belong to.
	Hosts map[string]string
}

// Production reports whether the provider's environment hides unpublished
// projects.
func (p Provider) Production() bool {
	switch strings.ToLower(strings.TrimSpace(p.Environment)) {
	case "production", "prod":
		return true
	}
	return false
}

// For returns the base predicate for a request to host. Unknown hosts add
// no restriction. The result is nil when nothing applies.
func (p Provider) For(host string) queryir.Node {
	var parts []queryir.Node
	if p.Production() {
		parts = append(parts, queryir.Leaf{Field: FieldPublished, Predicate: ir.IRBool(true)})
	}
	if collection, ok := p.Hosts[normalizeHost(host)]; ok && collection != "" {
		parts = append(parts, queryir.Leaf{Field: FieldCollections, Predicate: ir.IRString(collection)})
	}
	return queryir.Conjoin(parts...)
}

// normalizeHost lowercases host and strips a port.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.HasPrefix(host, "[") {
		// IPv6 literal
		if end := strings.Index(host, "]"); end >= 0 {
			return host[:end+1]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
