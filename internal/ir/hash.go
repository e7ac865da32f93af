package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainTransition = "ledgerd/transition/v1"
	DomainPayload    = "ledgerd/payload/v1"
	DomainCatalogue  = "ledgerd/catalogue/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TransitionID computes the content-addressed id of a transition.
// Every field except ID itself contributes, including the produced contracts,
// so a replayed journal reproduces the same ids bit for bit.
func TransitionID(t Transition) (string, error) {
	consumed := make(List, len(t.Consumed))
	for i, id := range t.Consumed {
		consumed[i] = Int(id)
	}
	produced := make(List, len(t.Produced))
	for i, c := range t.Produced {
		produced[i] = Record{
			"id":       Int(c.ID),
			"template": Text(c.Template),
			"payload":  nonNil(c.Payload),
		}
	}

	obj := Record{
		"seq":          Int(t.Seq),
		"command_id":   Text(t.CommandID),
		"timestamp":    Text(t.Timestamp.UTC().Format(time.RFC3339Nano)),
		"acting_party": Text(t.ActingParty),
		"kind":         Text(t.Kind),
		"template":     Text(t.Template),
		"choice":       Text(t.Choice),
		"target":       Int(t.Target),
		"args":         nonNil(t.Args),
		"consumed":     consumed,
		"produced":     produced,
		"result":       nonNil(t.Result),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransitionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransition, canonical), nil
}

// PayloadHash hashes a contract payload. Used by audit output to compare
// payloads across a contract's lineage without printing them.
func PayloadHash(payload Record) (string, error) {
	canonical, err := MarshalCanonical(nonNil(payload))
	if err != nil {
		return "", fmt.Errorf("PayloadHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// CatalogueHash fingerprints a set of template specs so a journal can
// detect being replayed against a different catalogue.
func CatalogueHash(specs []TemplateSpec) (string, error) {
	list := make(List, len(specs))
	for i, s := range specs {
		list[i] = s.record()
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("CatalogueHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalogue, canonical), nil
}

// MustTransitionID is like TransitionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransitionID(t Transition) string {
	id, err := TransitionID(t)
	if err != nil {
		panic(err)
	}
	return id
}

func nonNil(r Record) Record {
	if r == nil {
		return Record{}
	}
	return r
}
