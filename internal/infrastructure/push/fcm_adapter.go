// Package push delivers notifications through an FCM-compatible HTTP API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/internal/domains/notification/model"
)

// maxContentBytes keeps the payload inside the FCM message size limit.
const maxContentBytes = 2048

type fcmAdapter struct {
	cfg    config.PushConfig
	client *http.Client
}

// NewAdapter returns the PUSH channel adapter.
func NewAdapter(cfg config.PushConfig) *fcmAdapter {
	return &fcmAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *fcmAdapter) Channel() model.Channel {
	return model.ChannelPush
}

func (a *fcmAdapter) Send(ctx context.Context, req *model.DispatchRequest) (string, error) {
	if a.cfg.ServerKey == "" {
		return "", model.ErrMissingConfig
	}

	if req.DeviceToken == nil || *req.DeviceToken == "" {
		return "", fmt.Errorf("%w: missing device token", model.ErrInvalidRecipient)
	}
	token := *req.DeviceToken
	if len(req.Content) > maxContentBytes {
		return "", fmt.Errorf("%w: %d bytes", model.ErrContentTooLarge, len(req.Content))
	}

	payload, err := json.Marshal(map[string]interface{}{
		"to": token,
		"notification": map[string]string{
			"title": req.Subject,
			"body":  req.Content,
		},
		"data": map[string]string{
			"notificationId": req.NotificationID.String(),
			"correlationId":  req.CorrelationID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal push payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.APIURL+"/fcm/send", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	httpReq.Header.Set("Authorization", "key="+a.cfg.ServerKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("push send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest:
		return "", model.Permanent(fmt.Errorf("push rejected: %s", body))
	default:
		return "", fmt.Errorf("push provider error (%d): %s", resp.StatusCode, body)
	}

	var result struct {
		Results []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	if len(result.Results) > 0 {
		r := result.Results[0]
		if r.Error != "" {
			if r.Error == "InvalidRegistration" || r.Error == "NotRegistered" {
				return "", model.Permanent(fmt.Errorf("%w: %s", model.ErrInvalidRecipient, r.Error))
			}
			return "", fmt.Errorf("push delivery error: %s", r.Error)
		}
		log.Debug().
			Str("messageID", r.MessageID).
			Str("correlationID", req.CorrelationID).
			Msg("[PushAdapter] Message accepted")
		return r.MessageID, nil
	}
	return "fcm-" + req.NotificationID.String(), nil
}
