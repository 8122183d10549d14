package core

import "time"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure is a non-2xx answer from the backend.
	OutcomeFailure Outcome = "failure"
	// OutcomeError is a transport or decoding problem.
	OutcomeError Outcome = "error"
	// OutcomeRejected is an action refused before any request was sent.
	OutcomeRejected Outcome = "rejected"
)

// Activity records the outcome of one user action.
type Activity struct {
	Action        Action
	Outcome       Outcome
	TransactionID TransactionID
	Session       string
	StatusCode    int
	At            time.Time
}

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeError, OutcomeRejected:
		return true
	}
	return false
}
