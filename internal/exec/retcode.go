package exec

import (
	"strings"

	"github.com/quantonic/autotrader/internal/domain"
)

// Trade server return codes, MT5 numbering.
const (
	RetRequote         = 10004
	RetPlaced          = 10008
	RetDone            = 10009
	RetInvalidVolume   = 10014
	RetInvalidStops    = 10016
	RetTradeDisabled   = 10017
	RetMarketClosed    = 10018
	RetNoMoney         = 10019
	RetPriceChanged    = 10020
	RetPriceOff        = 10021
	RetTimeout         = 10012
	RetTooManyRequests = 10024
	RetConnection      = 10031
)

// replyClass drives the executor's state machine for a single reply.
type replyClass int

const (
	classSuccess replyClass = iota
	// classTransient: the broker answered but the request can be retried
	// as-is after a short delay (requote, stale price, throttling).
	classTransient
	// classUnavailable: the terminal or its connection is down; retry,
	// and report BrokerUnavailable once the budget is spent.
	classUnavailable
	// classInvalidStops: the protective prices violate the broker's stop
	// level; widen and retry.
	classInvalidStops
	// classPermanent: retrying the same request cannot succeed.
	classPermanent
)

// classify maps a broker reply onto the executor's retry policy. Some
// brokers report stop-level violations through a generic retcode with an
// explanatory comment, so the comment text is consulted as well.
func classify(reply domain.BrokerReply) replyClass {
	switch reply.RetCode {
	case RetDone, RetPlaced:
		return classSuccess
	case RetInvalidStops:
		return classInvalidStops
	case RetRequote, RetPriceChanged, RetPriceOff, RetTooManyRequests:
		return classTransient
	case RetTimeout, RetConnection:
		return classUnavailable
	case RetTradeDisabled, RetMarketClosed, RetInvalidVolume, RetNoMoney:
		return classPermanent
	}

	comment := strings.ToLower(reply.Comment)
	for _, phrase := range []string{"invalid stops", "invalid s/l", "invalid sl", "too close"} {
		if strings.Contains(comment, phrase) {
			return classInvalidStops
		}
	}
	// Unknown retcodes get the bounded retry budget rather than an
	// immediate reject; the budget keeps a genuinely-permanent unknown
	// from turning into a retry storm.
	return classTransient
}
