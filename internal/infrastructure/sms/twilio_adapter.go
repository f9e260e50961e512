// Package sms delivers notifications through a Twilio-compatible REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
)

// maxContentBytes is the concatenated-SMS ceiling most carriers accept.
const maxContentBytes = 1600

var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

type twilioAdapter struct {
	cfg    config.SMSConfig
	client *http.Client
}

// NewAdapter returns the SMS channel adapter.
func NewAdapter(cfg config.SMSConfig) *twilioAdapter {
	return &twilioAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *twilioAdapter) Channel() model.Channel {
	return model.ChannelSMS
}

func (a *twilioAdapter) Send(ctx context.Context, req *model.DispatchRequest) (string, error) {
	if a.cfg.AccountSID == "" || a.cfg.AuthToken == "" || a.cfg.FromNumber == "" {
		return "", model.ErrMissingConfig
	}

	to := req.Address()
	if !phoneRegex.MatchString(to) {
		return "", fmt.Errorf("%w: %q is not E.164", model.ErrInvalidRecipient, to)
	}
	if len(req.Content) > maxContentBytes {
		return "", fmt.Errorf("%w: %d bytes", model.ErrContentTooLarge, len(req.Content))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", a.cfg.FromNumber)
	form.Set("Body", req.Content)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(a.cfg.APIURL, "/"), a.cfg.AccountSID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	httpReq.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sms send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		// Provider rejected the request itself; retrying cannot help.
		return "", model.Permanent(fmt.Errorf("sms rejected (%d): %s", resp.StatusCode, body))
	default:
		return "", fmt.Errorf("sms provider error (%d): %s", resp.StatusCode, body)
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}

	log.Debug().
		Str("to", to).
		Str("sid", result.SID).
		Str("correlationID", req.CorrelationID).
		Msg("[SMSAdapter] Message accepted")

	return result.SID, nil
}
