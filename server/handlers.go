package server

import (
	"net/http"
	"strings"

	"github.com/rustyeddy/ordergate/gate"
	"github.com/rustyeddy/ordergate/order"
	"github.com/shopspring/decimal"
)

type openRequest struct {
	Ticker     string          `json:"ticker"`
	Strike     decimal.Decimal `json:"strike"`
	OptionType string          `json:"option_type"`
	Expiration string          `json:"expiration"`
	Contracts  int             `json:"contracts"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

func (o openRequest) intent(a order.Action) order.Intent {
	return order.Intent{
		Action:     a,
		Ticker:     o.Ticker,
		Strike:     o.Strike,
		OptionType: o.OptionType,
		Expiration: o.Expiration,
		Contracts:  o.Contracts,
		EntryPrice: o.EntryPrice,
	}
}

type validateRequest struct {
	openRequest
	Action string `json:"action"`
}

type orderRequest struct {
	openRequest
	OrderAction string `json:"order_action"`
}

type closeRequest struct {
	Ticker    string `json:"ticker"`
	Contracts int    `json:"contracts"`
	CloseAll  bool   `json:"close_all"`
}

type addRequest struct {
	Ticker    string `json:"ticker"`
	Contracts int    `json:"contracts"`
}

// GET /api/health
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ordergate",
		"version": s.version,
	})
}

// POST /api/validate_position checks an OPEN, ADD or CLOSE without
// touching the ledger.
func (s *Server) validatePosition(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, validation{
			Reason: "Invalid input: " + err.Error(),
			Error:  codeInvalidInput,
		})
		return
	}

	ctx, sess := r.Context(), s.sessionFor(r)
	action := strings.ToUpper(strings.TrimSpace(req.Action))

	var out gate.Outcome
	var err error
	switch action {
	case "", "OPEN":
		action = "OPEN"
		out, err = s.gate.ValidateOpen(ctx, sess, req.intent(order.BuyToOpen))
	case "ADD":
		out, err = s.gate.ValidateAdd(ctx, sess, req.Ticker, req.Contracts)
	case "CLOSE":
		out, err = s.gate.ValidateClose(ctx, sess, req.Ticker, req.Contracts)
	default:
		writeJSON(w, http.StatusBadRequest, validation{
			Reason: "Invalid action: " + req.Action,
			Error:  codeInvalidAction,
		})
		return
	}

	if err != nil || out.Kind == gate.KindStorage {
		writeJSON(w, http.StatusInternalServerError, validation{
			Reason: serverErrorMessage,
			Error:  codeServerError,
		})
		return
	}
	if action == "OPEN" && out.Kind == gate.KindRiskViolation {
		writeJSON(w, http.StatusBadRequest, validation{
			Reason:             out.Message,
			Error:              codeRiskCheckFailed,
			RiskLevel:          riskLevel(out),
			AvailableContracts: out.AvailableContracts,
			Warnings:           nonNil(out.Warnings),
		})
		return
	}

	writeJSON(w, http.StatusOK, validation{
		Valid:              out.Success,
		Reason:             out.Message,
		CurrentContracts:   out.CurrentContracts,
		AvailableContracts: out.AvailableContracts,
		Warnings:           nonNil(out.Warnings),
		ExistingPosition:   optionalJSON(out.Position),
	})
}

// POST /api/open_position
func (s *Server) openPosition(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Invalid input: " + err.Error(), Error: codeInvalidInput})
		return
	}

	out, err := s.gate.OpenPosition(r.Context(), s.sessionFor(r), req.intent(order.BuyToOpen))
	writeOutcome(w, out, err, codeInvalidInput, func(out gate.Outcome) any {
		return map[string]any{
			"success":     true,
			"message":     out.Message,
			"position_id": out.PositionID,
			"position":    optionalJSON(out.Position),
			"warnings":    nonNil(out.Warnings),
		}
	})
}

// POST /api/close_position
func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Invalid input: " + err.Error(), Error: codeInvalidInput})
		return
	}

	ctx, sess := r.Context(), s.sessionFor(r)
	var out gate.Outcome
	var err error
	if req.CloseAll {
		out, err = s.gate.CloseAll(ctx, sess, req.Ticker)
	} else {
		out, err = s.gate.CloseContracts(ctx, sess, req.Ticker, req.Contracts)
	}
	writeOutcome(w, out, err, codeCloseRejected, func(out gate.Outcome) any {
		return map[string]any{
			"success":             true,
			"message":             out.Message,
			"contracts_closed":    out.Contracts,
			"remaining_contracts": out.RemainingContracts,
		}
	})
}

// POST /api/add_contracts
func (s *Server) addContracts(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Invalid input: " + err.Error(), Error: codeInvalidInput})
		return
	}

	out, err := s.gate.AddContracts(r.Context(), s.sessionFor(r), req.Ticker, req.Contracts)
	writeOutcome(w, out, err, codePositionRejected, func(out gate.Outcome) any {
		total := out.CurrentContracts + out.Contracts
		return map[string]any{
			"success":             true,
			"message":             out.Message,
			"position_id":         out.PositionID,
			"contracts_added":     out.Contracts,
			"total_contracts":     total,
			"available_contracts": out.AvailableContracts,
			"warnings":            nonNil(out.Warnings),
		}
	})
}

// POST /api/orders accepts any order action and routes it through the gate.
func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Invalid input: " + err.Error(), Error: codeInvalidInput})
		return
	}
	action, err := order.ParseAction(req.OrderAction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Invalid action: " + req.OrderAction, Error: codeInvalidAction})
		return
	}

	invalid := codeInvalidInput
	if !action.Supported() {
		invalid = codeInvalidAction
	}
	out, err := s.gate.Submit(r.Context(), s.sessionFor(r), req.intent(action))
	writeOutcome(w, out, err, invalid, func(out gate.Outcome) any {
		return map[string]any{
			"success":             true,
			"message":             out.Message,
			"action":              out.Action.String(),
			"position_id":         out.PositionID,
			"contracts":           out.Contracts,
			"remaining_contracts": out.RemainingContracts,
			"warnings":            nonNil(out.Warnings),
		}
	})
}

// GET /api/get_positions[?session_id=]
func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	ps, err := s.gate.GetOpenPositions(r.Context(), sess)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failure{Message: serverErrorMessage, Error: codeServerError})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"positions":  toJSONList(ps),
	})
}

// GET /api/session_summary[?session_id=]
func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.gate.GetSessionSummary(r.Context(), s.sessionFor(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failure{Message: serverErrorMessage, Error: codeServerError})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"summary": map[string]any{
			"session_id":                 sum.SessionID,
			"total_positions":            sum.Positions,
			"total_contracts":            sum.Contracts,
			"total_exposure":             sum.Exposure,
			"executions":                 sum.Executions,
			"max_positions_allowed":      sum.Limits.MaxNewPositions,
			"max_contracts_per_position": sum.Limits.MaxContractsPerPosition,
			"positions":                  toJSONList(sum.Open),
		},
	})
}

type utilization struct {
	Current        any     `json:"current"`
	MaxAllowed     any     `json:"max_allowed"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// GET /api/risk_summary[?session_id=]
func (s *Server) riskSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.gate.GetSessionSummary(r.Context(), s.sessionFor(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failure{Message: serverErrorMessage, Error: codeServerError})
		return
	}
	l := sum.Limits
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"risk_summary": map[string]any{
			"session_id": sum.SessionID,
			"positions":  utilization{sum.Positions, l.MaxNewPositions, round1(sum.PositionUtilization)},
			"executions": utilization{sum.Executions, l.MaxTotalExecutions, round1(sum.ExecutionUtilization)},
			"exposure":   utilization{sum.Exposure, l.MaxPortfolioExposure, round1(sum.ExposureUtilization)},
			"contracts":  map[string]int{"total_open": sum.Contracts},
		},
	})
}

func round1(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(1).Float64()
	return v
}
