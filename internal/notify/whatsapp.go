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

const (
	// DefaultWhatsAppBase is the Graph API host.
	DefaultWhatsAppBase = "https://graph.facebook.com"
	whatsappAPIVersion  = "v17.0"
	whatsappTemplate    = "attendance_notification"
	whatsappLanguage    = "id"
)

// AckPolicy decides what counts as a successful WhatsApp delivery.
type AckPolicy int

const (
	// AckLenient reports success once the request has been attempted,
	// whatever the provider answered. This matches the behaviour the
	// attendance front-end has always relied on; failures are still logged.
	AckLenient AckPolicy = iota
	// AckStrict reports success only for a 2xx answer carrying a message id.
	AckStrict
)

// WhatsAppSender posts template messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Policy        AckPolicy
	HTTP          *http.Client
	Metrics       *Metrics
}

// NewWhatsAppSender creates a sender; timeout bounds each request.
func NewWhatsAppSender(baseURL, token, phoneNumberID string, policy AckPolicy, timeout time.Duration) *WhatsAppSender {
	if baseURL == "" {
		baseURL = DefaultWhatsAppBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppSender{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Token:         token,
		PhoneNumberID: phoneNumberID,
		Policy:        policy,
		HTTP:          &http.Client{Timeout: timeout},
	}
}

// NormalizePhone converts a local Indonesian number (leading 0) to +62 form.
// Numbers already starting with "+" are returned unchanged. No other checks
// are made.
func NormalizePhone(number string) string {
	if strings.HasPrefix(number, "+") {
		return number
	}
	return "+62" + strings.TrimPrefix(number, "0")
}

type whatsappText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type whatsappComponent struct {
	Type       string         `json:"type"`
	Parameters []whatsappText `json:"parameters"`
}

type whatsappLanguageCode struct {
	Code string `json:"code"`
}

type whatsappTemplateBody struct {
	Name       string               `json:"name"`
	Language   whatsappLanguageCode `json:"language"`
	Components []whatsappComponent  `json:"components"`
}

type whatsappRequest struct {
	MessagingProduct string               `json:"messaging_product"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Template         whatsappTemplateBody `json:"template"`
}

type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func newWhatsAppRequest(to, message string) whatsappRequest {
	return whatsappRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: whatsappTemplateBody{
			Name:     whatsappTemplate,
			Language: whatsappLanguageCode{Code: whatsappLanguage},
			Components: []whatsappComponent{{
				Type:       "body",
				Parameters: []whatsappText{{Type: "text", Text: message}},
			}},
		},
	}
}

// Notify sends message to phoneNumber and reports success under the sender's policy.
func (s *WhatsAppSender) Notify(ctx context.Context, phoneNumber, message string) bool {
	return s.Send(ctx, phoneNumber, message).OK
}

// Send delivers message to phoneNumber. Under AckLenient the Result is OK
// whenever a request was attempted; Err still carries any failure detail.
func (s *WhatsAppSender) Send(ctx context.Context, phoneNumber, message string) Result {
	start := time.Now()
	res := s.send(ctx, NormalizePhone(phoneNumber), message)
	if s.Policy == AckLenient {
		res.OK = true
	}
	s.Metrics.observe(ChannelWhatsApp, res, time.Since(start))
	return res
}

// send performs the request and reports the verified outcome.
func (s *WhatsAppSender) send(ctx context.Context, to, message string) Result {
	body, err := json.Marshal(newWhatsAppRequest(to, message))
	if err != nil {
		log.Printf("notify: whatsapp: encode request: %v", err)
		return Result{Err: err}
	}
	url := fmt.Sprintf("%s/%s/%s/messages", s.BaseURL, whatsappAPIVersion, s.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: whatsapp: build request: %v", err)
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		log.Printf("notify: whatsapp: request to %s failed: %v", to, err)
		return Result{Err: fmt.Errorf("whatsapp request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out whatsappResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil {
			log.Printf("notify: whatsapp: %s: status %d: %s (code %d)", to, resp.StatusCode, out.Error.Message, out.Error.Code)
		} else {
			log.Printf("notify: whatsapp: %s: status %d: %s", to, resp.StatusCode, string(raw))
		}
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("whatsapp error %s", resp.Status)}
	}
	if decodeErr != nil {
		log.Printf("notify: whatsapp: %s: decode response: %v: %s", to, decodeErr, string(raw))
		return Result{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		log.Printf("notify: whatsapp: %s: no message id in response", to)
		return Result{StatusCode: resp.StatusCode, Err: ErrNotAcknowledged}
	}
	return Result{OK: true, StatusCode: resp.StatusCode}
}
