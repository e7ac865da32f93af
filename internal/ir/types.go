package ir

import (
	"fmt"
	"slices"
	"time"
)

// Party is an opaque, pre-verified party identifier ("Alice", "Bank::1220...").
type Party string

// ContractID identifies a contract. Allocated by the contract store,
// strictly increasing, never reused.
type ContractID int64

// String renders the id as "#n".
func (id ContractID) String() string {
	return fmt.Sprintf("#%d", int64(id))
}

// Status is the lifecycle state of a contract.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Contract is an immutable instance of a template.
// Only Status and ArchivedBy change, exactly once, when the contract is consumed.
type Contract struct {
	ID          ContractID `json:"id"`
	Template    string     `json:"template"`
	Signatories []Party    `json:"signatories"`
	Observers   []Party    `json:"observers"`
	Payload     Record     `json:"payload"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedSeq  int64      `json:"created_seq"`
	ArchivedBy  string     `json:"archived_by,omitempty"`
}

// IsActive reports whether the contract may still be exercised.
func (c Contract) IsActive() bool {
	return c.Status == StatusActive
}

// Stakeholders returns signatories ∪ observers, sorted.
func (c Contract) Stakeholders() []Party {
	return NormalizeParties(append(slices.Clone(c.Signatories), c.Observers...))
}

// VisibleTo reports whether p is a signatory or observer.
func (c Contract) VisibleTo(p Party) bool {
	return slices.Contains(c.Signatories, p) || slices.Contains(c.Observers, p)
}

// IsSignatory reports whether p is a signatory.
func (c Contract) IsSignatory(p Party) bool {
	return slices.Contains(c.Signatories, p)
}

// Clone returns a deep copy safe to hand to callers.
func (c Contract) Clone() Contract {
	out := c
	out.Signatories = slices.Clone(c.Signatories)
	out.Observers = slices.Clone(c.Observers)
	out.Payload = c.Payload.Clone()
	return out
}

// NormalizeParties sorts and de-duplicates a party list. Empty parties are dropped.
func NormalizeParties(parties []Party) []Party {
	out := make([]Party, 0, len(parties))
	for _, p := range parties {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TransitionKind distinguishes template creation from choice exercise.
type TransitionKind string

const (
	TransitionCreate   TransitionKind = "create"
	TransitionExercise TransitionKind = "exercise"
)

// Transition is the durable record of one atomic ledger step.
type Transition struct {
	ID          string         `json:"id"`
	Seq         int64          `json:"seq"`
	CommandID   string         `json:"command_id"`
	Timestamp   time.Time      `json:"timestamp"`
	ActingParty Party          `json:"acting_party"`
	Kind        TransitionKind `json:"kind"`
	Template    string         `json:"template"`
	Choice      string         `json:"choice,omitempty"`
	Target      ContractID     `json:"target,omitempty"`
	Args        Record         `json:"args"`
	Consumed    []ContractID   `json:"consumed"`
	Produced    []Contract     `json:"produced"`
	Result      Record         `json:"result"`
}

// ProducedIDs returns the ids of the contracts the transition created, in order.
func (t Transition) ProducedIDs() []ContractID {
	ids := make([]ContractID, len(t.Produced))
	for i, c := range t.Produced {
		ids[i] = c.ID
	}
	return ids
}

// Clone returns a deep copy.
func (t Transition) Clone() Transition {
	out := t
	out.Args = t.Args.Clone()
	out.Result = t.Result.Clone()
	out.Consumed = slices.Clone(t.Consumed)
	out.Produced = make([]Contract, len(t.Produced))
	for i, c := range t.Produced {
		out.Produced[i] = c.Clone()
	}
	return out
}
