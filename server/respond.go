package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rustyeddy/ordergate/gate"
	"github.com/rustyeddy/ordergate/ledger"
	"github.com/shopspring/decimal"
)

// Error codes returned in the "error" field of a rejection.
const (
	codeRiskCheckFailed  = "RISK_CHECK_FAILED"
	codePositionRejected = "POSITION_REJECTED"
	codeCloseRejected    = "CLOSE_REJECTED"
	codeNoPosition       = "NO_POSITION"
	codeInvalidInput     = "INVALID_INPUT"
	codeInvalidAction    = "INVALID_ACTION"
	codeServerError      = "SERVER_ERROR"
)

const serverErrorMessage = "Internal server error"

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"SERVER_ERROR"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

type failure struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Error     string   `json:"error"`
	RiskLevel string   `json:"risk_level,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

type validation struct {
	Valid              bool          `json:"valid"`
	Reason             string        `json:"reason"`
	Error              string        `json:"error,omitempty"`
	RiskLevel          string        `json:"risk_level,omitempty"`
	CurrentContracts   int           `json:"current_contracts"`
	AvailableContracts int           `json:"available_contracts"`
	Warnings           []string      `json:"warnings"`
	ExistingPosition   *positionJSON `json:"existing_position,omitempty"`
}

type positionJSON struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Ticker     string          `json:"ticker"`
	Strike     decimal.Decimal `json:"strike"`
	OptionType string          `json:"option_type"`
	Expiration string          `json:"expiration"`
	Contracts  int             `json:"contracts"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Exposure   decimal.Decimal `json:"exposure"`
	EntryTime  time.Time       `json:"entry_time"`
	Status     string          `json:"status"`
}

func toJSON(p ledger.Position) positionJSON {
	return positionJSON{
		ID:         p.ID,
		SessionID:  p.SessionID,
		Ticker:     p.Ticker,
		Strike:     p.Strike,
		OptionType: string(p.OptionType),
		Expiration: string(p.Expiration),
		Contracts:  p.Contracts,
		EntryPrice: p.EntryPrice,
		Exposure:   p.Exposure(),
		EntryTime:  p.EntryTime,
		Status:     string(p.Status),
	}
}

func toJSONList(ps []ledger.Position) []positionJSON {
	out := make([]positionJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, toJSON(p))
	}
	return out
}

func optionalJSON(p *ledger.Position) *positionJSON {
	if p == nil {
		return nil
	}
	j := toJSON(*p)
	return &j
}

// rejectionCode maps a rejected outcome to its error code. invalidCode is
// the endpoint's code for KindInvalidInput.
func rejectionCode(out gate.Outcome, invalidCode string) string {
	switch out.Kind {
	case gate.KindRiskViolation:
		return codeRiskCheckFailed
	case gate.KindNotFound:
		return codeNoPosition
	case gate.KindConflict:
		return codePositionRejected
	case gate.KindStorage:
		return codeServerError
	}
	return invalidCode
}

func riskLevel(out gate.Outcome) string {
	if out.Risk == nil || out.Risk.Valid {
		return ""
	}
	return out.Risk.Level.String()
}

// writeOutcome writes the accepted payload built by ok, a 400 rejection, or
// a generic 500 when the ledger failed. The gate has already logged the
// cause of a failure.
func writeOutcome(w http.ResponseWriter, out gate.Outcome, err error, invalidCode string, ok func(gate.Outcome) any) {
	if err != nil || out.Kind == gate.KindStorage {
		writeJSON(w, http.StatusInternalServerError, failure{Message: serverErrorMessage, Error: codeServerError})
		return
	}
	if !out.Success {
		writeJSON(w, http.StatusBadRequest, failure{
			Message:   out.Message,
			Error:     rejectionCode(out, invalidCode),
			RiskLevel: riskLevel(out),
			Warnings:  out.Warnings,
		})
		return
	}
	writeJSON(w, http.StatusOK, ok(out))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
