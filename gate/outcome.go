package gate

import (
	"fmt"

	"github.com/rustyeddy/ordergate/ledger"
	"github.com/rustyeddy/ordergate/order"
	"github.com/rustyeddy/ordergate/risk"
	"github.com/shopspring/decimal"
)

// Kind classifies an Outcome.
type Kind int

const (
	KindAccepted Kind = iota
	KindRiskViolation
	KindConflict
	KindNotFound
	KindInvalidInput
	KindStorage
)

var kindNames = map[Kind]string{
	KindAccepted:      "accepted",
	KindRiskViolation: "risk_violation",
	KindConflict:      "conflict",
	KindNotFound:      "not_found",
	KindInvalidInput:  "invalid_input",
	KindStorage:       "storage",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the gate's answer to one order. Business rejections come back
// with Success false and a nil error.
type Outcome struct {
	Success bool
	Kind    Kind
	Message string
	Action  order.Action

	PositionID string
	Risk       *risk.Result // set whenever a risk pipeline ran

	// Contracts is the quantity acted on: opened, added or closed.
	Contracts          int
	CurrentContracts   int // held before the order
	AvailableContracts int // room left under the per-position cap
	RemainingContracts int // held after a close

	Position *ledger.Position
	Warnings []string
}

func reject(action order.Action, kind Kind, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Action: action, Message: fmt.Sprintf(format, args...)}
}

func riskRejection(action order.Action, res risk.Result) Outcome {
	return Outcome{
		Kind:     KindRiskViolation,
		Action:   action,
		Message:  res.Reason,
		Risk:     &res,
		Warnings: res.Warnings,
	}
}

// Summary is a point-in-time view of one session.
type Summary struct {
	SessionID  string
	Positions  int
	Contracts  int
	Exposure   decimal.Decimal
	Executions int
	Limits     risk.Limits

	PositionUtilization  float64 // percent of MaxNewPositions
	ExecutionUtilization float64 // percent of MaxTotalExecutions
	ExposureUtilization  float64 // percent of MaxPortfolioExposure

	Open []ledger.Position
}

// Snapshot is the risk pipeline's view of the summary.
func (s Summary) Snapshot() risk.Snapshot {
	return risk.Snapshot{
		OpenPositions: s.Positions,
		OpenContracts: s.Contracts,
		OpenExposure:  s.Exposure,
		Executions:    s.Executions,
	}
}
