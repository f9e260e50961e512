package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"notification-backend/internal/domains/notification/model"
)

// mapping binds an event type to the template it dispatches and the
// priority it rides at.
type mapping struct {
	Template string
	Priority model.Priority
}

// defaultMappings is the built-in event-to-template table, overridable per
// deployment through EVENT_TEMPLATE_MAP (a JSON object eventType -> template
// name).
var defaultMappings = map[string]mapping{
	EventOrderPlaced:         {"order_placed_confirmation", model.PriorityMedium},
	EventOrderFilled:         {"order_execution_alert", model.PriorityMedium},
	EventOrderCancelled:      {"order_cancelled_notice", model.PriorityLow},
	EventOrderRejected:       {"order_rejected_alert", model.PriorityHigh},
	EventDepositCompleted:    {"deposit_completed_receipt", model.PriorityMedium},
	EventWithdrawalCompleted: {"withdrawal_completed_receipt", model.PriorityMedium},
	EventPaymentFailed:       {"payment_failed_alert", model.PriorityHigh},
	EventProfileUpdated:      {"profile_updated_notice", model.PriorityLow},
	EventEmailVerified:       {"email_verified_notice", model.PriorityLow},
	EventKycSubmitted:        {"kyc_submitted_notice", model.PriorityLow},
	EventKycVerified:         {"kyc_verified_notice", model.PriorityMedium},
	EventSuspiciousLogin:     {"suspicious_login_alert", model.PriorityUrgent},
	EventPasswordChanged:     {"password_changed_alert", model.PriorityHigh},
	EventTwoFaEnabled:        {"two_fa_enabled_notice", model.PriorityMedium},
	EventBalanceUpdated:      {"balance_updated_notice", model.PriorityLow},
	EventPositionClosed:      {"position_closed_summary", model.PriorityMedium},
	EventPerformanceAlert:    {"performance_alert", model.PriorityHigh},
}

// Mapper turns decoded events into send requests.
type Mapper struct {
	mappings map[string]mapping
}

// NewMapper builds the mapper, applying EVENT_TEMPLATE_MAP overrides.
func NewMapper() *Mapper {
	mappings := make(map[string]mapping, len(defaultMappings))
	for eventType, m := range defaultMappings {
		mappings[eventType] = m
	}

	if raw := os.Getenv("EVENT_TEMPLATE_MAP"); raw != "" {
		overrides := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			log.Error().Err(err).Msg("[Mapper] Ignoring malformed EVENT_TEMPLATE_MAP")
		} else {
			for eventType, template := range overrides {
				m := mappings[eventType]
				m.Template = template
				if m.Priority == "" {
					m.Priority = model.PriorityMedium
				}
				mappings[eventType] = m
				log.Info().
					Str("eventType", eventType).
					Str("template", template).
					Msg("[Mapper] Template mapping override")
			}
		}
	}

	return &Mapper{mappings: mappings}
}

// Handles reports whether eventType has a mapping. The consumer uses this
// to skip irrelevant messages before paying for a payload decode.
func (m *Mapper) Handles(eventType string) bool {
	_, ok := m.mappings[eventType]
	return ok
}

// Map builds the send request for an event. The recipient is the user's
// email address taken from the event itself; the fallback subject and
// content ride along inline so dispatch can still deliver when the mapped
// template is missing or retired.
func (m *Mapper) Map(envelope *Envelope, payload interface{}) (*model.SendRequest, error) {
	binding, ok := m.mappings[envelope.EventType]
	if !ok {
		return nil, fmt.Errorf("no template mapping for %q", envelope.EventType)
	}

	variables := extractVariables(payload)
	variables["eventType"] = envelope.EventType
	variables["userEmail"] = envelope.UserEmail
	if envelope.UserID != "" {
		variables["userId"] = envelope.UserID
	}
	if envelope.UserName != "" {
		variables["userName"] = envelope.UserName
	}

	subject, content := fallbackMessage(envelope, payload)

	req := &model.SendRequest{
		Channel:           string(model.ChannelEmail),
		Recipient:         envelope.UserEmail,
		EmailAddress:      &envelope.UserEmail,
		Subject:           subject,
		Content:           content,
		TemplateName:      &binding.Template,
		TemplateVariables: variables,
		Priority:          string(binding.Priority),
		CorrelationID:     envelope.CorrelationID,
		ReferenceType:     &envelope.EventType,
	}
	if ref := referenceID(payload); ref != "" {
		req.ReferenceID = &ref
	}
	return req, nil
}

// referenceID picks the event's own identifier for cross-referencing the
// history row back to the upstream entity.
func referenceID(payload interface{}) string {
	switch p := payload.(type) {
	case *OrderEvent:
		return p.OrderID
	case *MoneyMovementEvent:
		return p.TransactionID
	case *BalanceEvent:
		return p.AccountID
	case *PositionEvent:
		return p.PositionID
	}
	return ""
}

// fallbackMessage builds the default human-readable text for an event, used
// when the mapped template cannot be resolved at dispatch time.
func fallbackMessage(envelope *Envelope, payload interface{}) (string, string) {
	name := envelope.UserName
	if name == "" {
		name = "there"
	}

	switch p := payload.(type) {
	case *OrderEvent:
		detail := p.Symbol
		if p.AvgExecutionPrice != nil {
			detail += " at " + p.AvgExecutionPrice.String()
		}
		switch envelope.EventType {
		case EventOrderFilled:
			return fmt.Sprintf("Order %s filled: %s", p.OrderID, p.Symbol),
				fmt.Sprintf("Hi %s, your order %s was filled: %s.", name, p.OrderID, detail)
		case EventOrderRejected:
			return fmt.Sprintf("Order %s rejected", p.OrderID),
				fmt.Sprintf("Hi %s, your order %s for %s was rejected: %s.", name, p.OrderID, p.Symbol, p.Reason)
		case EventOrderCancelled:
			return fmt.Sprintf("Order %s cancelled", p.OrderID),
				fmt.Sprintf("Hi %s, your order %s for %s was cancelled.", name, p.OrderID, p.Symbol)
		default:
			return fmt.Sprintf("Order %s placed: %s", p.OrderID, p.Symbol),
				fmt.Sprintf("Hi %s, your order %s for %s was placed.", name, p.OrderID, p.Symbol)
		}
	case *MoneyMovementEvent:
		amount := p.Amount.String() + " " + p.Currency
		switch envelope.EventType {
		case EventDepositCompleted:
			return "Deposit completed",
				fmt.Sprintf("Hi %s, your deposit of %s completed (transaction %s).", name, amount, p.TransactionID)
		case EventWithdrawalCompleted:
			return "Withdrawal completed",
				fmt.Sprintf("Hi %s, your withdrawal of %s completed (transaction %s).", name, amount, p.TransactionID)
		default:
			return "Payment failed",
				fmt.Sprintf("Hi %s, a payment of %s failed: %s (transaction %s).", name, amount, p.Reason, p.TransactionID)
		}
	case *AccountEvent:
		switch envelope.EventType {
		case EventSuspiciousLogin:
			return "SECURITY ALERT: suspicious login detected",
				fmt.Sprintf("Hi %s, we detected a login from %s (%s, %s). If this was not you, secure your account now.",
					name, p.IPAddress, p.Location, p.Device)
		case EventPasswordChanged:
			return "Your password was changed",
				fmt.Sprintf("Hi %s, your account password was just changed. If this was not you, contact support.", name)
		case EventTwoFaEnabled:
			return "Two-factor authentication enabled",
				fmt.Sprintf("Hi %s, two-factor authentication is now active on your account.", name)
		default:
			return "Account update",
				fmt.Sprintf("Hi %s, your account was updated (%s).", name, envelope.EventType)
		}
	case *BalanceEvent:
		return "Balance updated",
			fmt.Sprintf("Hi %s, your account %s balance is now %s %s (change %s).",
				name, p.AccountID, p.Balance.String(), p.Currency, p.Change.String())
	case *PositionEvent:
		if envelope.EventType == EventPerformanceAlert {
			return fmt.Sprintf("Performance alert: %s", p.Symbol),
				fmt.Sprintf("Hi %s, %s on %s crossed its threshold (PnL %s, %s%%).",
					name, p.Metric, p.Symbol, p.PnL.String(), p.PnLPercent.String())
		}
		return fmt.Sprintf("Position closed: %s", p.Symbol),
			fmt.Sprintf("Hi %s, your %s position closed with PnL %s (%s%%).",
				name, p.Symbol, p.PnL.String(), p.PnLPercent.String())
	}

	return envelope.EventType, fmt.Sprintf("Hi %s, you have a new %s notification.", name, envelope.EventType)
}

// extractVariables flattens a typed payload into template variables.
func extractVariables(payload interface{}) map[string]interface{} {
	variables := map[string]interface{}{}

	switch p := payload.(type) {
	case *OrderEvent:
		variables["orderId"] = p.OrderID
		variables["symbol"] = p.Symbol
		if p.Side != "" {
			variables["side"] = p.Side
		}
		if p.Quantity != nil {
			variables["quantity"] = *p.Quantity
		}
		if p.Price != nil {
			variables["price"] = *p.Price
		}
		if p.FilledQuantity != nil {
			variables["filledQuantity"] = *p.FilledQuantity
		}
		if p.AvgExecutionPrice != nil {
			variables["avgExecutionPrice"] = *p.AvgExecutionPrice
		}
		if p.Reason != "" {
			variables["reason"] = p.Reason
		}
	case *MoneyMovementEvent:
		variables["transactionId"] = p.TransactionID
		variables["amount"] = p.Amount
		variables["currency"] = p.Currency
		if p.Method != "" {
			variables["method"] = p.Method
		}
		if p.Reason != "" {
			variables["reason"] = p.Reason
		}
	case *AccountEvent:
		if p.Field != "" {
			variables["field"] = p.Field
		}
		if p.IPAddress != "" {
			variables["ipAddress"] = p.IPAddress
		}
		if p.Location != "" {
			variables["location"] = p.Location
		}
		if p.Device != "" {
			variables["device"] = p.Device
		}
	case *BalanceEvent:
		variables["accountId"] = p.AccountID
		variables["balance"] = p.Balance
		variables["currency"] = p.Currency
		variables["change"] = p.Change
	case *PositionEvent:
		variables["positionId"] = p.PositionID
		variables["symbol"] = p.Symbol
		variables["pnl"] = p.PnL
		variables["pnlPercent"] = p.PnLPercent
		if p.Metric != "" {
			variables["metric"] = p.Metric
		}
		if p.Threshold != nil {
			variables["threshold"] = *p.Threshold
		}
	}

	// decimals render through their Stringer; normalize here so templates
	// never see scientific notation.
	for key, value := range variables {
		if d, ok := value.(decimal.Decimal); ok {
			variables[key] = d.String()
		}
	}
	return variables
}
