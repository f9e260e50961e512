// Package ingest consumes upstream platform events and turns them into
// notification dispatches.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the common slice of every upstream event. Events are flat JSON
// objects with eventType and the user fields at the top level next to the
// type-specific ones; the raw bytes are kept so DecodePayload can read the
// same object again through the typed variant.
type Envelope struct {
	EventType     string    `json:"eventType"`
	UserID        string    `json:"userId,omitempty"`
	UserEmail     string    `json:"userEmail"`
	UserName      string    `json:"userName,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`

	raw []byte
}

// Event type names as emitted by the upstream platforms.
const (
	EventOrderPlaced         = "ORDER_PLACED"
	EventOrderFilled         = "ORDER_FILLED"
	EventOrderCancelled      = "ORDER_CANCELLED"
	EventOrderRejected       = "ORDER_REJECTED"
	EventDepositCompleted    = "DEPOSIT_COMPLETED"
	EventWithdrawalCompleted = "WITHDRAWAL_COMPLETED"
	EventPaymentFailed       = "PAYMENT_FAILED"
	EventProfileUpdated      = "PROFILE_UPDATED"
	EventEmailVerified       = "EMAIL_VERIFIED"
	EventKycSubmitted        = "KYC_SUBMITTED"
	EventKycVerified         = "KYC_VERIFIED"
	EventSuspiciousLogin     = "SUSPICIOUS_LOGIN"
	EventPasswordChanged     = "PASSWORD_CHANGED"
	EventTwoFaEnabled        = "TWO_FA_ENABLED"
	EventBalanceUpdated      = "BALANCE_UPDATED"
	EventPositionClosed      = "POSITION_CLOSED"
	EventPerformanceAlert    = "PERFORMANCE_ALERT"
)

// ================================================
// EVENT VARIANTS
// ================================================

// OrderEvent covers the order lifecycle events; some fields are only set
// for particular types (Reason for rejections, fill fields for fills).
type OrderEvent struct {
	OrderID           string           `json:"orderId"`
	Symbol            string           `json:"symbol"`
	Side              string           `json:"side,omitempty"`
	Quantity          *decimal.Decimal `json:"quantity,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	FilledQuantity    *decimal.Decimal `json:"filledQuantity,omitempty"`
	AvgExecutionPrice *decimal.Decimal `json:"avgExecutionPrice,omitempty"`
	Reason            string           `json:"reason,omitempty"`
}

// MoneyMovementEvent covers deposits, withdrawals and payment failures.
type MoneyMovementEvent struct {
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// AccountEvent covers profile, verification and security lifecycle events.
type AccountEvent struct {
	Field     string `json:"field,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Location  string `json:"location,omitempty"`
	Device    string `json:"device,omitempty"`
}

// BalanceEvent carries account balance changes.
type BalanceEvent struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Change    decimal.Decimal `json:"change"`
}

// PositionEvent carries position close and performance alerts.
type PositionEvent struct {
	PositionID string           `json:"positionId"`
	Symbol     string           `json:"symbol"`
	PnL        decimal.Decimal  `json:"pnl"`
	PnLPercent decimal.Decimal  `json:"pnlPercent"`
	Metric     string           `json:"metric,omitempty"`
	Threshold  *decimal.Decimal `json:"threshold,omitempty"`
}

// ================================================
// DECODING
// ================================================

// DecodeEnvelope parses the common fields and validates what every event
// must carry: an event type to route on and a user email to deliver to.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if envelope.EventType == "" {
		return nil, fmt.Errorf("event missing eventType")
	}
	if envelope.UserEmail == "" {
		return nil, fmt.Errorf("event %s missing userEmail", envelope.EventType)
	}
	envelope.raw = data
	return envelope, nil
}

// DecodePayload returns the typed variant for the envelope's event type,
// read from the same flat object the envelope was decoded from.
func DecodePayload(envelope *Envelope) (interface{}, error) {
	var target interface{}

	switch envelope.EventType {
	case EventOrderPlaced, EventOrderFilled, EventOrderCancelled, EventOrderRejected:
		target = &OrderEvent{}
	case EventDepositCompleted, EventWithdrawalCompleted, EventPaymentFailed:
		target = &MoneyMovementEvent{}
	case EventProfileUpdated, EventEmailVerified, EventKycSubmitted,
		EventKycVerified, EventSuspiciousLogin, EventPasswordChanged, EventTwoFaEnabled:
		target = &AccountEvent{}
	case EventBalanceUpdated:
		target = &BalanceEvent{}
	case EventPositionClosed, EventPerformanceAlert:
		target = &PositionEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.EventType)
	}

	if err := json.Unmarshal(envelope.raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return target, nil
}
