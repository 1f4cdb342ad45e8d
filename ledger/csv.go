package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "session_id", "ticker", "strike", "option_type", "expiration",
	"contracts", "entry_price", "exposure", "entry_time", "status", "closed_at",
}

// WriteCSV exports positions, one row each, with a header line.
func WriteCSV(w io.Writer, positions []Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range positions {
		closed := ""
		if !p.ClosedAt.IsZero() {
			closed = p.ClosedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			p.ID,
			p.SessionID,
			p.Ticker,
			p.Strike.String(),
			string(p.OptionType),
			string(p.Expiration),
			strconv.Itoa(p.Contracts),
			p.EntryPrice.StringFixed(2),
			p.Exposure().StringFixed(2),
			p.EntryTime.UTC().Format(time.RFC3339),
			string(p.Status),
			closed,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteExecutionsCSV exports the execution log.
func WriteExecutionsCSV(w io.Writer, executions []Execution) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "session_id", "type", "ticker", "contracts", "time"}); err != nil {
		return err
	}
	for _, e := range executions {
		if err := cw.Write([]string{
			strconv.FormatInt(e.Seq, 10),
			e.SessionID,
			string(e.Type),
			e.Ticker,
			strconv.Itoa(e.Contracts),
			e.Time.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
