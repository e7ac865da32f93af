package query

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/ledgerd/internal/ir"
	"github.com/roach88/ledgerd/internal/ledger"
	"github.com/roach88/ledgerd/internal/queryir"
	"github.com/roach88/ledgerd/internal/registry"
)

// Source is the contract state a Service reads. *ledger.Store implements it.
type Source interface {
	Snapshot() *ledger.Snapshot
	Get(id ir.ContractID) (ir.Contract, error)
}

// Request selects the active contracts of one template visible to Party.
type Request struct {
	Party    ir.Party
	Template string
	Filter   queryir.Predicate
}

// Service evaluates queries over a Source.
//
// Thread-safety: Service is safe for concurrent use.
type Service struct {
	registry *registry.Registry
	source   Source
	exprs    *exprCache
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a query service. Fails only if the CEL environment cannot be
// built.
func New(reg *registry.Registry, src Source, opts ...Option) (*Service, error) {
	exprs, err := newExprCache()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	s := &Service{
		registry: reg,
		source:   src,
		exprs:    exprs,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindActive returns the active contracts of template visible to party that
// match filter, ordered by contract id.
//
// The template and filter are checked before the sequence is returned:
// UnknownTemplate for an undeclared template, SchemaViolation for a filter
// naming an undeclared field or an expression that does not compile.
//
// The sequence is lazy and bound to the snapshot taken by this call;
// ranging over it again replays the same contracts. Yielded contracts are
// copies.
func (s *Service) FindActive(party ir.Party, template string, filter queryir.Predicate) (iter.Seq[ir.Contract], error) {
	tmpl, err := s.registry.Resolve(template)
	if err != nil {
		return nil, err
	}
	if err := queryir.CheckFields(filter, tmpl.Spec.Fields); err != nil {
		return nil, err
	}
	match, err := s.compile(filter)
	if err != nil {
		return nil, err
	}

	snap := s.source.Snapshot()
	s.logger.Debug("query",
		"party", party,
		"template", template,
		"seq", snap.Seq(),
		"portable", queryir.Validate(queryir.Select{Template: template, Party: party, Filter: filter}).IsPortable,
	)

	return func(yield func(ir.Contract) bool) {
		for _, c := range snap.Active(template) {
			if !c.VisibleTo(party) || !match(c) {
				continue
			}
			if !yield(c.Clone()) {
				return
			}
		}
	}, nil
}

// Find runs a Request. See FindActive.
func (s *Service) Find(req Request) (iter.Seq[ir.Contract], error) {
	return s.FindActive(req.Party, req.Template, req.Filter)
}

// Collect runs a Request and gathers the results.
func (s *Service) Collect(req Request) ([]ir.Contract, error) {
	seq, err := s.Find(req)
	if err != nil {
		return nil, err
	}
	out := []ir.Contract{}
	for c := range seq {
		out = append(out, c)
	}
	return out, nil
}

// Lookup returns an active contract visible to party. Archived, unknown
// and invisible contracts all fail NotFound, and the message never
// reveals which.
func (s *Service) Lookup(party ir.Party, id ir.ContractID) (ir.Contract, error) {
	c, err := s.source.Get(id)
	if err != nil || !c.IsActive() || !c.VisibleTo(party) {
		return ir.Contract{}, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
	}
	return c, nil
}
