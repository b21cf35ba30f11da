package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultTelegramBase is the public Bot API host.
const DefaultTelegramBase = "https://api.telegram.org"

// Result is the outcome of a single send attempt.
type Result struct {
	OK         bool
	StatusCode int
	Err        error
}

// TelegramSender posts messages through the Bot API sendMessage method.
type TelegramSender struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Metrics *Metrics
}

// NewTelegramSender creates a sender; timeout bounds each request.
func NewTelegramSender(baseURL, token string, timeout time.Duration) *TelegramSender {
	if baseURL == "" {
		baseURL = DefaultTelegramBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type telegramRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Notify sends message to chatID and reports success.
func (s *TelegramSender) Notify(ctx context.Context, chatID, message string) bool {
	return s.Send(ctx, chatID, message).OK
}

// Send delivers message to the chat identified by chatID. It never panics on
// transport failures; every failure is logged and returned in the Result.
func (s *TelegramSender) Send(ctx context.Context, chatID, message string) Result {
	start := time.Now()
	res := s.send(ctx, chatID, message)
	s.Metrics.observe(ChannelTelegram, res, time.Since(start))
	return res
}

func (s *TelegramSender) send(ctx context.Context, chatID, message string) Result {
	if !validChatID(chatID) {
		log.Printf("notify: telegram: invalid chat id %q, skipping", chatID)
		return Result{Err: ErrInvalidRecipient}
	}
	if strings.TrimSpace(message) == "" {
		log.Printf("notify: telegram: empty message for chat %s, skipping", chatID)
		return Result{Err: ErrEmptyMessage}
	}

	body, err := json.Marshal(telegramRequest{ChatID: chatID, Text: message, ParseMode: "HTML"})
	if err != nil {
		log.Printf("notify: telegram: encode request: %v", err)
		return Result{Err: err}
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.BaseURL, s.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: telegram: build request: %v", err)
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		// the token is part of the URL
		msg := redact(err, s.Token)
		log.Printf("notify: telegram: request to chat %s failed: %s", chatID, msg)
		return Result{Err: fmt.Errorf("telegram request failed: %s", msg)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out telegramResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil {
			log.Printf("notify: telegram: chat %s: status %d: %s", chatID, resp.StatusCode, out.Description)
		} else {
			log.Printf("notify: telegram: chat %s: status %d: %s", chatID, resp.StatusCode, string(raw))
		}
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("telegram error %s", resp.Status)}
	}
	if decodeErr != nil {
		log.Printf("notify: telegram: chat %s: decode response: %v: %s", chatID, decodeErr, string(raw))
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if !out.OK {
		log.Printf("notify: telegram: chat %s: not acknowledged: %s", chatID, out.Description)
		return Result{StatusCode: resp.StatusCode, Err: ErrNotAcknowledged}
	}
	return Result{OK: true, StatusCode: resp.StatusCode}
}

func validChatID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != "undefined" && id != "null"
}

func redact(err error, secret string) string {
	if secret == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), secret, "<redacted>")
}
