package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferux/trafficsentinel/internal/fcontext"
	"github.com/ferux/trafficsentinel/internal/model"
)

// Notifier delivers device events. Delivery is best effort: callers log a
// failed delivery at debug level and move on, they never retry.
type Notifier interface {
	Notify(ctx context.Context, event model.DeviceEvent) error
}

// Noop swallows events. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(context.Context, model.DeviceEvent) error { return nil }

type client struct {
	c          *http.Client
	webhookURL string
}

// New creates a webhook notifier, or a Noop one when the URL is empty.
func New(webhookURL string) Notifier {
	if webhookURL == "" {
		return Noop{}
	}

	return &client{
		c:          &http.Client{Timeout: time.Second * 10},
		webhookURL: webhookURL,
	}
}

type message struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Color  string  `json:"color,omitempty"`
	Fields []field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (client *client) Notify(ctx context.Context, event model.DeviceEvent) (err error) {
	logger := zerolog.Ctx(ctx).With().Str("pkg", "slack").Logger()
	rid := fcontext.RequestID(ctx)

	if len(event.MAC) == 0 {
		return model.ServiceError{Message: "mac is empty", RequestID: rid}
	}

	color, statusText := statusAppearance(event.Status)

	name := event.Name
	if name == "" {
		name = "unknown"
	}

	headline := "Traffic Sentinel - new device detected"
	switch event.Status {
	case model.StatusBanned:
		headline = "Traffic Sentinel - device blocked"
	case model.StatusAuthorized:
		headline = "Traffic Sentinel - device authorized"
	}

	msg := message{
		Text: headline,
		Attachments: []attachment{{
			Color: color,
			Fields: []field{
				{Title: "Device", Value: name, Short: true},
				{Title: "MAC address", Value: strings.ToUpper(event.MAC), Short: true},
				{Title: "Status", Value: statusText, Short: true},
				{Title: "Detected", Value: event.Timestamp.Format("2006-01-02 15:04:05"), Short: true},
			},
			Footer: "Traffic Sentinel Network Monitor",
			Ts:     event.Timestamp.Unix(),
		}},
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	request, _ := http.NewRequestWithContext(ctx, http.MethodPost, client.webhookURL, bytes.NewReader(data))
	request.Header.Set("Content-Type", "application/json")

	response, err := client.c.Do(request)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}

	responseData, _ := io.ReadAll(response.Body)

	// I don't care about error here
	_ = response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return model.ServiceError{
			Message:   fmt.Sprintf("slack returned %d: %s", response.StatusCode, responseData),
			RequestID: rid,
			Code:      response.StatusCode,
		}
	}

	logger.Debug().Str("mac", event.MAC).Msg("event delivered")

	return nil
}

func statusAppearance(status model.Status) (color, text string) {
	switch status {
	case model.StatusQuarantine:
		return "#ff9900", "quarantined (blocked)"
	case model.StatusBanned:
		return "#ff0000", "banned"
	case model.StatusAuthorized:
		return "#36a64f", "authorized"
	default:
		return "#cccccc", string(status)
	}
}
