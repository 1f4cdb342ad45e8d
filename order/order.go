package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the closed set of order actions understood by the gate.
// Strings are parsed into an Action once at the boundary; everything
// downstream switches on the value.
type Action int

const (
	ActionUnknown Action = iota
	BuyToOpen
	SellToClose
	BuyToClose
	SellToOpen
)

var actionNames = map[Action]string{
	ActionUnknown: "UNKNOWN",
	BuyToOpen:     "BUY_TO_OPEN",
	SellToClose:   "SELL_TO_CLOSE",
	BuyToClose:    "BUY_TO_CLOSE",
	SellToOpen:    "SELL_TO_OPEN",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Supported reports whether orders with this action may reach the ledger.
// BUY_TO_CLOSE and SELL_TO_OPEN are recognized but always rejected.
func (a Action) Supported() bool {
	return a == BuyToOpen || a == SellToClose
}

// ParseAction accepts the canonical action names in any case, plus the
// OPEN/CLOSE shorthands used by the web interface.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY_TO_OPEN", "OPEN":
		return BuyToOpen, nil
	case "SELL_TO_CLOSE", "CLOSE":
		return SellToClose, nil
	case "BUY_TO_CLOSE":
		return BuyToClose, nil
	case "SELL_TO_OPEN":
		return SellToOpen, nil
	}
	return ActionUnknown, fmt.Errorf("invalid order action: %q", s)
}

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType normalizes s to CALL or PUT. Case is ignored and the
// single-letter forms C and P are accepted.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	}
	return "", fmt.Errorf("invalid option type: %q (must be CALL or PUT)", s)
}

func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Expiration is an enumerated days-to-expiry tag.
type Expiration string

const (
	ZeroDTE  Expiration = "0DTE"
	OneDTE   Expiration = "1DTE"
	SevenDTE Expiration = "7DTE"
)

// ParseExpiration defaults an empty tag to 0DTE.
func ParseExpiration(s string) (Expiration, error) {
	switch e := Expiration(strings.ToUpper(strings.TrimSpace(s))); e {
	case "":
		return ZeroDTE, nil
	case ZeroDTE, OneDTE, SevenDTE:
		return e, nil
	}
	return "", fmt.Errorf("invalid expiration: %q (must be 0DTE, 1DTE or 7DTE)", s)
}

// NormalizeTicker upper-cases and trims a symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Intent is one order as handed to the gate by the transport layer.
// Strike, OptionType and EntryPrice are only meaningful for BUY_TO_OPEN.
type Intent struct {
	Action     Action
	Ticker     string
	Strike     decimal.Decimal
	OptionType string
	Expiration string
	Contracts  int
	EntryPrice decimal.Decimal
}

// Normalized returns a copy with the ticker cleaned up.
func (in Intent) Normalized() Intent {
	in.Ticker = NormalizeTicker(in.Ticker)
	return in
}
