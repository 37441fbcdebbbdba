package invoice

import "fmt"

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusFinal    Status = "FINAL"
	StatusPaid     Status = "PAID"
	StatusCanceled Status = "CANCELED"
)

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusDraft, StatusFinal, StatusPaid, StatusCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("invoice: unknown status %q", s)
	}
}

// Numbered reports whether an invoice in this state has left draft and
// carries its definitive number.
func (s Status) Numbered() bool {
	return s == StatusFinal || s == StatusPaid || s == StatusCanceled
}

// Operation names a lifecycle operation.
type Operation string

const (
	OpSave     Operation = "save"
	OpFinalize Operation = "finalize"
	OpMarkPaid Operation = "mark_paid"
	OpCancel   Operation = "cancel"
	OpDelete   Operation = "delete"
)

// StatusRemoved is the target of a successful delete.
const StatusRemoved Status = ""

// transitions is the complete state graph. A missing entry means the
// operation is not allowed from that state.
var transitions = map[Status]map[Operation]Status{
	StatusDraft: {
		OpSave:     StatusDraft,
		OpFinalize: StatusFinal,
		OpDelete:   StatusRemoved,
	},
	StatusFinal: {
		OpMarkPaid: StatusPaid,
		OpCancel:   StatusCanceled,
	},
	StatusPaid: {
		OpMarkPaid: StatusPaid,
		OpCancel:   StatusCanceled,
	},
	StatusCanceled: {},
}

// Transition returns the state reached by applying op in state from, and
// false when op is not allowed there.
func Transition(from Status, op Operation) (Status, bool) {
	to, ok := transitions[from][op]
	return to, ok
}

// EditTransition is Transition for OpSave under a post-final edit policy:
// when allowPostFinal is set, numbered invoices may be saved and keep
// their state.
func EditTransition(from Status, allowPostFinal bool) (Status, bool) {
	if to, ok := Transition(from, OpSave); ok {
		return to, true
	}
	if allowPostFinal && from.Numbered() {
		return from, true
	}
	return from, false
}
