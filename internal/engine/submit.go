package engine

import (
	"context"
	"errors"

	"github.com/roach88/ledgerd/internal/ir"
)

// SubmissionKind selects create or exercise.
type SubmissionKind string

const (
	SubmitCreate   SubmissionKind = "create"
	SubmitExercise SubmissionKind = "exercise"
)

// Submission is one command from a party.
type Submission struct {
	ActingParty ir.Party
	Kind        SubmissionKind
	Template    string        // create
	ContractID  ir.ContractID // exercise
	Choice      string        // exercise
	Arguments   ir.Record     // payload for create, choice arguments for exercise
	CommandID   string        // optional; generated when empty
}

// Status is the coarse outcome of a submission.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Outcome is the reply to a Submission. On rejection only the error fields
// are set; messages never carry payload values.
type Outcome struct {
	Status              Status
	TransitionID        string
	Seq                 int64
	CommandID           string
	ProducedContractIDs []ir.ContractID
	Result              ir.Record
	ErrorKind           ir.ErrorKind
	ErrorReason         ir.Reason
	ErrorMessage        string
}

// Committed reports whether the submission took effect.
func (o Outcome) Committed() bool {
	return o.Status == StatusCommitted
}

// Submit runs a submission and folds any failure into the Outcome.
func (e *Engine) Submit(ctx context.Context, s Submission) Outcome {
	var (
		res Result
		err error
	)
	switch s.Kind {
	case SubmitCreate:
		res, err = e.create(ctx, s.CommandID, s.ActingParty, s.Template, s.Arguments)
	case SubmitExercise:
		res, err = e.exercise(ctx, s.CommandID, s.ActingParty, s.ContractID, s.Choice, s.Arguments)
	default:
		err = ir.Invalid(ir.ReasonSchemaViolation, "unknown submission kind %q", s.Kind)
	}

	if err != nil {
		return rejected(s.CommandID, err)
	}
	return Outcome{
		Status:              StatusCommitted,
		TransitionID:        res.TransitionID,
		Seq:                 res.Seq,
		CommandID:           res.CommandID,
		ProducedContractIDs: res.Produced,
		Result:              res.Value,
	}
}

func rejected(commandID string, err error) Outcome {
	o := Outcome{
		Status:       StatusRejected,
		CommandID:    commandID,
		ErrorMessage: err.Error(),
	}
	if e, ok := ir.AsError(err); ok {
		o.ErrorKind = e.Kind
		o.ErrorReason = e.Reason
		o.ErrorMessage = e.Error()
		return o
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.ErrorKind = "Cancelled"
	}
	return o
}
