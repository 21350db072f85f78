package domain

import "time"

// OrderRequest is a market order with protective stops, built once per
// accepted signal. Quantity and stop prices are recomputed in place by
// the executor's widen/retry protocol; nothing else mutates mid-flight.
type OrderRequest struct {
	ClientID        string // UUID, for journaling and dedup
	Instrument      string
	Side            Side
	Quantity        float64 // lots, already clamped and step-rounded
	StopLossPrice   float64
	TakeProfitPrice float64
	ReferencePrice  float64 // entry reference at the time stops were computed
	Comment         string
}

// Outcome is the terminal state of an order submission attempt.
type Outcome string

const (
	OutcomeFilled                  Outcome = "filled"
	OutcomeFilledWithoutProtection Outcome = "filled_without_protection"
	OutcomeRejected                Outcome = "rejected"
	OutcomeBrokerUnavailable       Outcome = "broker_unavailable"
)

// OrderResult reports what the executor ultimately achieved for a request.
type OrderResult struct {
	Outcome           Outcome
	Ticket            int64 // broker position ticket when filled
	FilledPrice       float64
	AppliedStopLoss   float64
	AppliedTakeProfit float64
	RetryCount        int
	Warning           string // set for FilledWithoutProtection
	BrokerCode        int    // last broker retcode, for diagnostics
	BrokerMessage     string
}

// Filled reports whether the position was opened, protected or not.
func (r OrderResult) Filled() bool {
	return r.Outcome == OutcomeFilled || r.Outcome == OutcomeFilledWithoutProtection
}

// BrokerReply is the raw response to a single submit or modify call.
type BrokerReply struct {
	RetCode int
	Comment string
	Ticket  int64
	Deal    int64
	Price   float64
}

// ModifyResult is the response to a stop-loss modification request.
type ModifyResult struct {
	OK         bool
	BrokerCode int
	Message    string
}

// TrailAction records one attempted stop modification by the trailing
// controller.
type TrailAction struct {
	Instrument string
	Ticket     int64
	Side       Side
	FromStop   float64
	ToStop     float64
	OK         bool
	Message    string
	At         time.Time
}

// TrailSkip records why a position or instrument was left untouched
// during a trailing pass.
type TrailSkip struct {
	Instrument string
	Ticket     int64 // 0 when the whole instrument was skipped
	Reason     string
}

// TrailReport summarizes a full trailing pass.
type TrailReport struct {
	Actions   []TrailAction
	Inspected []TrailSkip
}
