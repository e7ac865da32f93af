package ledger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/ledgerd/internal/ir"
)

// Journal persists a transition before it becomes visible in memory.
// An error aborts the commit.
type Journal interface {
	AppendTransition(ctx context.Context, t ir.Transition) error
}

// Draft is a contract a transition will create. Ids are assigned by Commit.
type Draft struct {
	Template    string
	Signatories []ir.Party
	Observers   []ir.Party
	Payload     ir.Record
}

// CheckFunc re-validates a pending transition against the live state of the
// contracts it consumes or requires. It runs under the commit lock and must
// not call back into the Store.
type CheckFunc func(live map[ir.ContractID]ir.Contract) error

// KeyFunc returns the key of a contract of template with payload. ok is
// false when the template has no key. reason is the InvalidArgument reason
// a duplicate is rejected with.
type KeyFunc func(template string, payload ir.Record) (key string, reason ir.Reason, ok bool)

// Pending is a fully computed transition awaiting commit.
type Pending struct {
	CommandID   string
	Timestamp   time.Time
	ActingParty ir.Party
	Kind        ir.TransitionKind
	Template    string
	Choice      string
	Target      ir.ContractID
	Args        ir.Record
	Consumed    []ir.ContractID
	Produced    []Draft
	Result      ir.Record
	Check       CheckFunc

	// Requires lists contracts that must still be active at commit without
	// being consumed, such as the target of a non-consuming choice.
	Requires []ir.ContractID
}

// Store holds every contract ever created and the log of transitions
// that created and archived them.
type Store struct {
	mu        sync.RWMutex
	contracts map[ir.ContractID]ir.Contract
	active    map[string]map[ir.ContractID]struct{}
	log       []ir.Transition
	creator   map[ir.ContractID]int
	archiver  map[ir.ContractID]int
	seq       *Sequence
	lastID    ir.ContractID

	keyOf KeyFunc
	keys  map[string]ir.ContractID
	keyed map[ir.ContractID]string

	journal Journal
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithJournal makes every commit durable before it is applied.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithKeys installs the contract key function, so Restore also verifies
// that replayed contracts never share a key.
func WithKeys(fn KeyFunc) Option {
	return func(s *Store) {
		s.keyOf = fn
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		contracts: make(map[ir.ContractID]ir.Contract),
		active:    make(map[string]map[ir.ContractID]struct{}),
		creator:   make(map[ir.ContractID]int),
		archiver:  make(map[ir.ContractID]int),
		keys:      make(map[string]ir.ContractID),
		keyed:     make(map[ir.ContractID]string),
		seq:       NewSequence(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UseKeys installs the contract key function and indexes the active
// contracts under it. From then on Commit refuses a produced contract whose
// key is held by an active contract the transition does not consume.
func (s *Store) UseKeys(fn KeyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keyOf = fn
	clear(s.keys)
	clear(s.keyed)
	for _, ids := range s.active {
		for id := range ids {
			c := s.contracts[id]
			s.index(c.ID, c.Template, c.Payload)
		}
	}
}

// Commit applies a pending transition atomically and returns the recorded
// Transition. Fails with Conflict when a consumed or required contract was
// archived after the caller read it, NotFound when it never existed,
// InvalidArgument when a produced contract repeats an active key, and with
// the check's error when live-state validation fails. No partial effect is
// ever visible.
//
// ctx is honoured only until the commit lock is taken; once the journal
// write starts it runs to completion.
func (s *Store) Commit(ctx context.Context, p Pending) (ir.Transition, error) {
	if err := ctx.Err(); err != nil {
		return ir.Transition{}, fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.liveConsumed(p.Consumed)
	if err != nil {
		return ir.Transition{}, err
	}
	if err := s.liveRequired(live, p.Requires); err != nil {
		return ir.Transition{}, err
	}
	if p.Check != nil {
		if err := p.Check(live); err != nil {
			return ir.Transition{}, err
		}
	}
	if err := s.checkKeys(p.Consumed, p.Produced); err != nil {
		return ir.Transition{}, err
	}

	t, err := s.stamp(p)
	if err != nil {
		return ir.Transition{}, err
	}

	if s.journal != nil {
		if err := s.journal.AppendTransition(context.WithoutCancel(ctx), t); err != nil {
			s.logger.Error("journal append failed",
				"seq", t.Seq,
				"command_id", t.CommandID,
				"error", err,
			)
			return ir.Transition{}, fmt.Errorf("commit: journal: %w", err)
		}
	}

	s.apply(t)

	s.logger.Debug("transition committed",
		"id", t.ID,
		"seq", t.Seq,
		"kind", t.Kind,
		"template", t.Template,
		"choice", t.Choice,
		"consumed", len(t.Consumed),
		"produced", len(t.Produced),
	)

	return t.Clone(), nil
}

// liveConsumed resolves consumed ids to their current records. Caller holds mu.
func (s *Store) liveConsumed(ids []ir.ContractID) (map[ir.ContractID]ir.Contract, error) {
	live := make(map[ir.ContractID]ir.Contract, len(ids))
	for _, id := range ids {
		if _, dup := live[id]; dup {
			return nil, ir.Invalid(ir.ReasonPrecondition, "contract consumed twice by one transition").OnContract(id)
		}
		c, ok := s.contracts[id]
		if !ok {
			return nil, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
		}
		if !c.IsActive() {
			return nil, ir.Errorf(ir.ErrConflict, "contract was archived by a concurrent transition").OnContract(id)
		}
		live[id] = c
	}
	return live, nil
}

// liveRequired adds required contracts to live. Caller holds mu.
func (s *Store) liveRequired(live map[ir.ContractID]ir.Contract, ids []ir.ContractID) error {
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		c, ok := s.contracts[id]
		if !ok {
			return ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
		}
		if !c.IsActive() {
			return ir.Errorf(ir.ErrConflict, "contract was archived by a concurrent transition").OnContract(id)
		}
		live[id] = c
	}
	return nil
}

// checkKeys rejects produced contracts whose key is held by an active
// contract outside consumed, or by an earlier contract of the same
// transition. Caller holds mu.
func (s *Store) checkKeys(consumed []ir.ContractID, produced []Draft) error {
	if s.keyOf == nil {
		return nil
	}
	var seen map[string]bool
	for _, d := range produced {
		key, reason, ok := s.keyOf(d.Template, d.Payload)
		if !ok {
			continue
		}
		k := d.Template + "\x00" + key
		if holder, taken := s.keys[k]; taken && !slices.Contains(consumed, holder) {
			return ir.Invalid(reason, "an active %s already holds this key", d.Template).OnContract(holder)
		}
		if seen[k] {
			return ir.Invalid(reason, "transition produces two %s contracts with one key", d.Template)
		}
		if seen == nil {
			seen = make(map[string]bool)
		}
		seen[k] = true
	}
	return nil
}

// index records the key of an active contract. Caller holds mu.
func (s *Store) index(id ir.ContractID, template string, payload ir.Record) {
	if s.keyOf == nil {
		return
	}
	if key, _, ok := s.keyOf(template, payload); ok {
		k := template + "\x00" + key
		s.keys[k] = id
		s.keyed[id] = k
	}
}

// stamp allocates seq and ids and computes the content address. It does not
// advance any counter; apply does. Caller holds mu.
func (s *Store) stamp(p Pending) (ir.Transition, error) {
	t := ir.Transition{
		Seq:         s.seq.Current() + 1,
		CommandID:   p.CommandID,
		Timestamp:   p.Timestamp.UTC(),
		ActingParty: p.ActingParty,
		Kind:        p.Kind,
		Template:    p.Template,
		Choice:      p.Choice,
		Target:      p.Target,
		Args:        orEmpty(p.Args.Clone()),
		Consumed:    slices.Clone(p.Consumed),
		Result:      orEmpty(p.Result.Clone()),
		Produced:    make([]ir.Contract, len(p.Produced)),
	}
	if t.Consumed == nil {
		t.Consumed = []ir.ContractID{}
	}

	next := s.lastID
	for i, d := range p.Produced {
		next++
		t.Produced[i] = ir.Contract{
			ID:          next,
			Template:    d.Template,
			Signatories: ir.NormalizeParties(d.Signatories),
			Observers:   ir.NormalizeParties(d.Observers),
			Payload:     orEmpty(d.Payload.Clone()),
			Status:      ir.StatusActive,
			CreatedSeq:  t.Seq,
		}
	}

	id, err := ir.TransitionID(t)
	if err != nil {
		return ir.Transition{}, fmt.Errorf("commit: %w", err)
	}
	t.ID = id
	for i := range t.Produced {
		t.Produced[i].CreatedBy = id
	}
	return t, nil
}

func orEmpty(r ir.Record) ir.Record {
	if r == nil {
		return ir.Record{}
	}
	return r
}

// apply makes a stamped transition visible. Caller holds mu.
func (s *Store) apply(t ir.Transition) {
	idx := len(s.log)
	s.log = append(s.log, t)

	for _, id := range t.Consumed {
		c := s.contracts[id]
		c.Status = ir.StatusArchived
		c.ArchivedBy = t.ID
		s.contracts[id] = c
		delete(s.active[c.Template], id)
		s.archiver[id] = idx
		if k, ok := s.keyed[id]; ok {
			delete(s.keyed, id)
			if s.keys[k] == id {
				delete(s.keys, k)
			}
		}
	}
	for _, c := range t.Produced {
		s.contracts[c.ID] = c
		if s.active[c.Template] == nil {
			s.active[c.Template] = make(map[ir.ContractID]struct{})
		}
		s.active[c.Template][c.ID] = struct{}{}
		s.creator[c.ID] = idx
		s.lastID = max(s.lastID, c.ID)
		s.index(c.ID, c.Template, c.Payload)
	}
	s.seq.Next()
}

// Create commits a top-level create of one contract and returns its id.
func (s *Store) Create(ctx context.Context, actor ir.Party, d Draft) (ir.ContractID, error) {
	t, err := s.Commit(ctx, Pending{
		ActingParty: actor,
		Kind:        ir.TransitionCreate,
		Template:    d.Template,
		Args:        ir.Record{},
		Produced:    []Draft{d},
		Result:      ir.Record{},
	})
	if err != nil {
		return 0, err
	}
	return t.Produced[0].ID, nil
}

// Get returns a contract by id, active or archived. Fails NotFound.
func (s *Store) Get(id ir.ContractID) (ir.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return ir.Contract{}, ir.Errorf(ir.ErrNotFound, "contract not found").OnContract(id)
	}
	return c.Clone(), nil
}

// Seq returns the seq of the last committed transition.
func (s *Store) Seq() int64 {
	return s.seq.Current()
}

// Log returns a copy of every committed transition in seq order.
func (s *Store) Log() []ir.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ir.Transition, len(s.log))
	for i, t := range s.log {
		out[i] = t.Clone()
	}
	return out
}

// Snapshot captures the active contract set at the current seq.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		seq:        s.seq.Current(),
		byTemplate: make(map[string][]ir.Contract, len(s.active)),
	}
	for tmpl, ids := range s.active {
		if len(ids) == 0 {
			continue
		}
		list := make([]ir.Contract, 0, len(ids))
		for id := range ids {
			list = append(list, s.contracts[id])
		}
		slices.SortFunc(list, func(a, b ir.Contract) int { return cmp.Compare(a.ID, b.ID) })
		snap.byTemplate[tmpl] = list
	}
	return snap
}

// Snapshot is an immutable view of the active contracts at one seq.
// Contracts returned by its methods share payloads with the store and
// must be cloned before being handed out of process.
type Snapshot struct {
	seq        int64
	byTemplate map[string][]ir.Contract
}

// Seq returns the seq the snapshot was taken at.
func (sn *Snapshot) Seq() int64 {
	return sn.seq
}

// Active returns the active contracts of a template ordered by id.
func (sn *Snapshot) Active(template string) []ir.Contract {
	return sn.byTemplate[template]
}

// All returns every active contract ordered by id.
func (sn *Snapshot) All() []ir.Contract {
	var out []ir.Contract
	for _, list := range sn.byTemplate {
		out = append(out, list...)
	}
	slices.SortFunc(out, func(a, b ir.Contract) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of active contracts.
func (sn *Snapshot) Len() int {
	n := 0
	for _, list := range sn.byTemplate {
		n += len(list)
	}
	return n
}
