package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatExitOrg renders a closed trade as an org-mode journal entry.
func FormatExitOrg(r ExitRecord) string {
	short := r.PositionID
	if len(short) > 8 {
		short = short[:8]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s (%s)\n", r.Symbol, r.Side, short)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", r.ID)
	fmt.Fprintf(&b, ":POSITION_ID: %s\n", r.PositionID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", r.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", r.Side)
	fmt.Fprintf(&b, ":KIND: %s\n", r.Kind)
	if r.Reason != "" {
		fmt.Fprintf(&b, ":REASON: %s\n", r.Reason)
	}
	if r.Level > 0 {
		fmt.Fprintf(&b, ":LEVEL: %g%%\n", r.Level)
	}
	fmt.Fprintf(&b, ":ENTRY_PRICE: %g\n", r.Entry)
	fmt.Fprintf(&b, ":EXIT_PRICE: %g\n", r.ExitPrice)
	fmt.Fprintf(&b, ":NOTIONAL: %.2f\n", r.Notional)
	fmt.Fprintf(&b, ":PNL: %.2f\n", r.PnL)
	if !r.OpenedAt.IsZero() {
		fmt.Fprintf(&b, ":OPEN_TIME: %s\n", r.OpenedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n\n*** Execution\n\n*** Review\n")
	return b.String()
}
