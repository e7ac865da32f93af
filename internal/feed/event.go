package feed

import (
	"time"

	"github.com/roach88/ledgerd/internal/ir"
)

// Event is the stream form of a transition: who did what to which
// contracts, without payloads.
type Event struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	CommandID   string            `json:"command_id"`
	Timestamp   time.Time         `json:"timestamp"`
	ActingParty ir.Party          `json:"acting_party"`
	Kind        ir.TransitionKind `json:"kind"`
	Template    string            `json:"template"`
	Choice      string            `json:"choice,omitempty"`
	Target      ir.ContractID     `json:"target,omitempty"`
	Consumed    []ir.ContractID   `json:"consumed"`
	Produced    []ContractHeader  `json:"produced"`
}

// ContractHeader identifies a produced contract and its stakeholders.
type ContractHeader struct {
	ID          ir.ContractID `json:"id"`
	Template    string        `json:"template"`
	Signatories []ir.Party    `json:"signatories"`
	Observers   []ir.Party    `json:"observers"`
}

// PartyView is what a party's channel receives: the event plus the
// produced contracts the party is a stakeholder of.
type PartyView struct {
	Event
	Contracts []ViewContract `json:"contracts"`
}

// ViewContract is a produced contract with its payload.
type ViewContract struct {
	ID       ir.ContractID `json:"id"`
	Template string        `json:"template"`
	Payload  ir.Record     `json:"payload"`
}

// NewEvent strips a transition down to its Event.
func NewEvent(t ir.Transition) Event {
	e := Event{
		ID:          t.ID,
		Seq:         t.Seq,
		CommandID:   t.CommandID,
		Timestamp:   t.Timestamp.UTC(),
		ActingParty: t.ActingParty,
		Kind:        t.Kind,
		Template:    t.Template,
		Choice:      t.Choice,
		Target:      t.Target,
		Consumed:    append([]ir.ContractID{}, t.Consumed...),
		Produced:    make([]ContractHeader, len(t.Produced)),
	}
	for i, c := range t.Produced {
		e.Produced[i] = ContractHeader{
			ID:          c.ID,
			Template:    c.Template,
			Signatories: c.Signatories,
			Observers:   c.Observers,
		}
	}
	return e
}

// audience lists every party that sees something in t, sorted: the acting
// party and the stakeholders of each produced contract.
func audience(t ir.Transition) []ir.Party {
	parties := []ir.Party{t.ActingParty}
	for _, c := range t.Produced {
		parties = append(parties, c.Stakeholders()...)
	}
	return ir.NormalizeParties(parties)
}

// viewFor builds party's view of t.
func viewFor(e Event, t ir.Transition, party ir.Party) PartyView {
	v := PartyView{Event: e, Contracts: []ViewContract{}}
	for _, c := range t.Produced {
		if c.VisibleTo(party) {
			v.Contracts = append(v.Contracts, ViewContract{ID: c.ID, Template: c.Template, Payload: c.Payload})
		}
	}
	return v
}
