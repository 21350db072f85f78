package engine

import (
	"fmt"
	"strings"

	"github.com/quantonic/autotrader/internal/domain"
)

func formatBlocked(symbol string, sig domain.Signal, d domain.GuardDecision) string {
	return fmt.Sprintf("%s %s (%s) blocked: %s",
		symbol, sig.Side, sig.Regime, strings.Join(d.Reasons, ", "))
}

func formatFill(symbol string, sig domain.Signal, lots float64, r domain.OrderResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %.2f lots @ %.5f", symbol, sig.Side, lots, r.FilledPrice)
	if r.AppliedStopLoss > 0 {
		fmt.Fprintf(&b, " sl=%.5f", r.AppliedStopLoss)
	}
	if r.AppliedTakeProfit > 0 {
		fmt.Fprintf(&b, " tp=%.5f", r.AppliedTakeProfit)
	}
	if r.RetryCount > 0 {
		fmt.Fprintf(&b, " retries=%d", r.RetryCount)
	}
	if r.Warning != "" {
		fmt.Fprintf(&b, " (%s)", r.Warning)
	}
	return b.String()
}

func formatTrail(a domain.TrailAction) string {
	return fmt.Sprintf("%s ticket %d: %.5f -> %.5f", a.Instrument, a.Ticket, a.FromStop, a.ToStop)
}
