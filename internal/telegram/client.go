// Package telegram is a minimal Bot API client covering the three calls the
// notifier needs: sendMessage, getUpdates and answerCallbackQuery.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/cptspacemanspiff/battery-notifier/internal/config"
	"github.com/cptspacemanspiff/battery-notifier/internal/retry"
)

const (
	maxResponseBytes = 1 << 20

	// RefreshButtonText labels the inline button attached to every report.
	RefreshButtonText = "🔄 Refresh Data"
)

// Client talks to the Bot API. Every call is synchronous and bounded by the
// configured connect and request timeouts, and retried per the send policy.
type Client struct {
	http        *http.Client
	endpoint    string
	chatID      string
	parseMode   string
	refreshData string
	pollTimeout int
	policy      retry.Policy
	log         *slog.Logger
}

func NewClient(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout()}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout()

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout(),
		},
		endpoint:    cfg.APIURL + "/bot" + cfg.Token,
		chatID:      cfg.ChatID,
		parseMode:   cfg.ParseMode,
		refreshData: cfg.RefreshData,
		pollTimeout: cfg.PollTimeoutSeconds,
		policy:      retry.Policy{Attempts: cfg.MaxAttempts, Delay: cfg.RetryDelay()},
		log:         logger,
	}
}

// Call invokes method with payload encoded as JSON and decodes the envelope's
// result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}

	result, err := retry.Do(ctx, c.policy, c.log, "telegram "+method+" request failed", func(ctx context.Context) (json.RawMessage, error) {
		return c.do(ctx, method, body)
	})
	if err != nil {
		return err
	}
	// An ok envelope without a result still counts as success.
	if out == nil || len(result) == 0 || string(result) == "null" {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: build request: %w", method, redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, redact(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Method: method, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Description = env.Description
		}
		c.log.Debug("http error response", "method", method, "status", resp.StatusCode, "body", string(data))
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, decodeErr)
	}
	if !env.OK {
		return nil, &APIError{Method: method, StatusCode: resp.StatusCode, Description: env.Description}
	}
	return env.Result, nil
}

// SendReport posts text with the single inline refresh button attached.
func (c *Client) SendReport(ctx context.Context, text string) error {
	return c.sendMessage(ctx, text, &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: RefreshButtonText, CallbackData: c.refreshData},
		}},
	})
}

// SendAlert posts text without any interactive affordance.
func (c *Client) SendAlert(ctx context.Context, text string) error {
	return c.sendMessage(ctx, text, nil)
}

func (c *Client) sendMessage(ctx context.Context, text string, markup *InlineKeyboardMarkup) error {
	var msg Message
	return c.Call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      c.chatID,
		Text:        text,
		ParseMode:   c.parseMode,
		ReplyMarkup: markup,
	}, &msg)
}

// GetUpdates long-polls for callback queries with update_id >= offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.Call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        c.pollTimeout,
		AllowedUpdates: []string{"callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// AnswerCallbackQuery acknowledges a button press with a transient notice.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	return c.Call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: id,
		Text:            text,
	}, nil)
}

// redact drops the request URL, which embeds the bot token, from transport errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
