package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed sidebar colors per event, in Discord's decimal RGB encoding.
const (
	colorGreen  = 0x2ECC71 // position opened
	colorBlue   = 0x3498DB // position closed
	colorRed    = 0xE74C3C // liquidation
	colorOrange = 0xE67E22 // error
	colorGrey   = 0x95A5A6 // anything else
)

// DiscordSender delivers trading alerts via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// eventColor picks the embed color for an engine event so operators can tell
// fills, liquidations, and errors apart without reading the body.
func eventColor(event string) int {
	switch event {
	case EventPositionOpened:
		return colorGreen
	case EventPositionClosed:
		return colorBlue
	case EventLiquidation:
		return colorRed
	case EventError:
		return colorOrange
	default:
		return colorGrey
	}
}

// Send posts the alert to the Discord webhook as an embed, colored by event
// type.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       eventColor(event),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
