// Package summary answers project summary requests: it derives the base
// filter, builds and resolves the client's query fragments, runs the
// combined filter against the projects collection and folds the matching
// documents into a metrics.Summary.
package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/mdstats/internal/basefilter"
	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/metrics"
	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/queryir"
	"github.com/roach88/mdstats/internal/reference"
)

// ProjectsCollection is the local name of the primary collection.
const ProjectsCollection = "projects"

// ExcludedFields are heavy project fields no summary reads.
var ExcludedFields = []string{
	"id",
	"metadata.pdbInfo",
	"metadata.INTERACTIONS",
	"metadata.CHARGES",
	"metadata.SEQUENCES",
	"metadata.DOMAINS",
}

// Backend is the document store a Service reads from.
// Both internal/store and internal/mongostore satisfy it.
type Backend interface {
	reference.Lookup
	Find(ctx context.Context, collection string, filter queryir.Node, exclude []string) iter.Seq2[ir.IRObject, error]
}

// Options configures a Service.
type Options struct {
	Catalog    *reference.Catalog
	Backend    Backend
	BaseFilter basefilter.Provider

	// Projects is the primary collection name. Defaults to ProjectsCollection.
	Projects string
	// MaxConcurrentLookups bounds reference lookups per request.
	MaxConcurrentLookups int

	Logger *slog.Logger
	IDs    IDGenerator
	Now    func() time.Time
}

// Request is one summary request.
type Request struct {
	// Queries are the raw JSON query fragments.
	Queries []string
	// Host is the request host; it selects the collection restriction.
	Host string
}

// Service orchestrates summary requests. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	backend  Backend
	base     basefilter.Provider
	builder  *querybuild.Builder
	projects string
	logger   *slog.Logger
	ids      IDGenerator
	now      func() time.Time
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, errors.New("summary: nil reference catalog")
	}
	if opts.Backend == nil {
		return nil, errors.New("summary: nil backend")
	}

	s := &Service{
		backend:  opts.Backend,
		base:     opts.BaseFilter,
		projects: opts.Projects,
		logger:   opts.Logger,
		ids:      opts.IDs,
		now:      opts.Now,
	}
	if s.projects == "" {
		s.projects = ProjectsCollection
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.ids == nil {
		s.ids = UUIDv7Generator{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	var resolverOpts []reference.Option
	if opts.MaxConcurrentLookups > 0 {
		resolverOpts = append(resolverOpts, reference.WithMaxConcurrentLookups(opts.MaxConcurrentLookups))
	}
	resolver := reference.NewResolver(opts.Catalog, opts.Backend, resolverOpts...)
	s.builder = querybuild.NewBuilder(resolver)
	return s, nil
}

// Filter returns the fully resolved filter for req without running it.
// Reference lookups are performed.
func (s *Service) Filter(ctx context.Context, req Request) (queryir.Node, error) {
	return s.builder.Build(ctx, req.Queries, s.base.For(req.Host))
}

// Summarize computes the summary of every project matching req.
//
// Every reference lookup finishes before the projects query starts. A
// canceled ctx abandons in-flight lookups and the document cursor.
func (s *Service) Summarize(ctx context.Context, req Request) (metrics.Summary, error) {
	start := s.now()
	logger := s.logger.With("request_id", s.ids.Generate())
	logger.Debug("summary request", "fragments", len(req.Queries), "host", req.Host)

	filter, err := s.Filter(ctx, req)
	if err != nil {
		logger.Warn("summary filter failed", "error", err, "client_error", IsClientError(err))
		return metrics.Summary{}, err
	}

	var docs int64
	counted := func(yield func(ir.IRObject, error) bool) {
		for doc, err := range s.backend.Find(ctx, s.projects, filter, ExcludedFields) {
			if err == nil {
				docs++
			}
			if !yield(doc, err) {
				return
			}
		}
	}

	sum, err := metrics.Aggregate(ctx, counted)
	if err != nil {
		logger.Error("summary aggregation failed", "error", err, "documents", docs)
		return metrics.Summary{}, fmt.Errorf("summarize %s: %w", s.projects, err)
	}

	logger.Info("summary computed",
		"fragments", len(req.Queries),
		"references", referenceLeaves(req.Queries),
		"documents", docs,
		"md_count", sum.MDCount,
		"elapsed", s.now().Sub(start),
	)
	return sum, nil
}

// referenceLeaves counts the reference-scoped leaves of the fragments that
// parse. Used for logging only.
func referenceLeaves(fragments []string) int {
	n := 0
	for _, f := range fragments {
		if node, err := querybuild.ParseFragment(f); err == nil {
			n += reference.Count(node)
		}
	}
	return n
}
