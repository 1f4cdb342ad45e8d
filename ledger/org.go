package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatPositionOrg renders a position as an Org-mode entry. Facts go in the
// PROPERTIES drawer; the Notes heading is left for the trader.
func FormatPositionOrg(p Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s %s (%s)\n", p.Ticker, p.Strike, p.OptionType, p.Expiration, shortID(p.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", p.ID)
	fmt.Fprintf(&b, ":SESSION: %s\n", p.SessionID)
	fmt.Fprintf(&b, ":STATUS: %s\n", p.Status)
	fmt.Fprintf(&b, ":CONTRACTS: %d\n", p.Contracts)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", p.EntryPrice.StringFixed(2))
	fmt.Fprintf(&b, ":EXPOSURE: %s\n", p.Exposure().StringFixed(2))
	fmt.Fprintf(&b, ":ENTRY_TIME: %s\n", p.EntryTime.UTC().Format(time.RFC3339))
	if !p.ClosedAt.IsZero() {
		fmt.Fprintf(&b, ":CLOSED_AT: %s\n", p.ClosedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatPositionsOrg renders several positions separated by blank lines.
func FormatPositionsOrg(ps []Position) string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatPositionOrg(p))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
