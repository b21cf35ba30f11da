// Package notify formats attendance messages and delivers them to guardians
// over Telegram and WhatsApp.
package notify

import (
	"context"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Channel is a notification transport selection.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelBoth     Channel = "both"
	ChannelNone     Channel = "none"
)

// ParseChannel accepts the four channel names; anything else is ChannelNone, false.
func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(s); c {
	case ChannelTelegram, ChannelWhatsApp, ChannelBoth, ChannelNone:
		return c, true
	}
	return ChannelNone, false
}

// ContactInfo holds a guardian's reachable identifiers.
type ContactInfo struct {
	TelegramID       string
	WhatsAppNumber   string
	PreferredChannel Channel
}

func (c ContactInfo) hasTelegram() bool { return strings.TrimSpace(c.TelegramID) != "" }
func (c ContactInfo) hasWhatsApp() bool { return strings.TrimSpace(c.WhatsAppNumber) != "" }

// DeliveryResult reports per-channel success of one dispatch.
type DeliveryResult struct {
	Telegram bool `json:"telegram"`
	WhatsApp bool `json:"whatsapp"`
}

// DetermineBestChannel picks the channel(s) to use for c. A preference for a
// single channel wins only when that channel's contact is present; otherwise
// selection falls back to what is available.
func DetermineBestChannel(c ContactInfo) Channel {
	switch c.PreferredChannel {
	case ChannelTelegram:
		if c.hasTelegram() {
			return ChannelTelegram
		}
	case ChannelWhatsApp:
		if c.hasWhatsApp() {
			return ChannelWhatsApp
		}
	}

	switch {
	case c.hasTelegram() && c.hasWhatsApp():
		return ChannelBoth
	case c.hasTelegram():
		return ChannelTelegram
	case c.hasWhatsApp():
		return ChannelWhatsApp
	default:
		return ChannelNone
	}
}

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient, message string) Result
}

// Notification is a single attendance event addressed to a guardian.
type Notification struct {
	Student Student
	Status  string
	Time    string
	Date    string
	Channel Channel
	Contact ContactInfo
	// Message, when set, is sent verbatim on every channel instead of the
	// formatted text.
	Message string
}

// Dispatcher fans a notification out to the selected channels.
type Dispatcher struct {
	telegram Sender
	whatsapp Sender
	timeout  time.Duration
	metrics  *Metrics
}

// NewDispatcher creates a Dispatcher. Either sender may be nil (channel disabled).
// timeout bounds each channel attempt; zero means 10s.
func NewDispatcher(telegram, whatsapp Sender, timeout time.Duration, metrics *Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{telegram: telegram, whatsapp: whatsapp, timeout: timeout, metrics: metrics}
}

// SendAttendanceNotification delivers n on the channels it selects and waits
// for every attempt. Failures, including panics inside a sender, are logged
// and show up as false flags; they are never returned to the caller.
func (d *Dispatcher) SendAttendanceNotification(ctx context.Context, n Notification) (res DeliveryResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notify: dispatch for %s panicked: %v\n%s", n.Student.Name, r, debug.Stack())
		}
	}()

	// Messages are built before any goroutine starts so a formatting panic
	// cannot race with an in-flight attempt.
	var tgMsg, waMsg string
	sendTelegram := n.Channel == ChannelTelegram || n.Channel == ChannelBoth
	sendWhatsApp := n.Channel == ChannelWhatsApp || n.Channel == ChannelBoth
	if sendTelegram && (!n.Contact.hasTelegram() || d.telegram == nil) {
		d.metrics.skipped(ChannelTelegram)
		sendTelegram = false
	}
	if sendWhatsApp && (!n.Contact.hasWhatsApp() || d.whatsapp == nil) {
		d.metrics.skipped(ChannelWhatsApp)
		sendWhatsApp = false
	}
	if sendTelegram {
		tgMsg = n.Message
		if tgMsg == "" {
			tgMsg = FormatTelegram(n.Student, n.Status, n.Time, n.Date)
		}
	}
	if sendWhatsApp {
		waMsg = n.Message
		if waMsg == "" {
			waMsg = FormatWhatsApp(n.Student, n.Status, n.Time, n.Date)
		}
	}

	var tgOK, waOK bool
	var g errgroup.Group
	if sendTelegram {
		g.Go(func() error {
			tgOK = d.attempt(ctx, ChannelTelegram, d.telegram, n.Contact.TelegramID, tgMsg)
			return nil
		})
	}
	if sendWhatsApp {
		g.Go(func() error {
			waOK = d.attempt(ctx, ChannelWhatsApp, d.whatsapp, n.Contact.WhatsAppNumber, waMsg)
			return nil
		})
	}
	_ = g.Wait()
	res.Telegram, res.WhatsApp = tgOK, waOK
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, s Sender, recipient, msg string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notify: %s sender panicked: %v\n%s", ch, r, debug.Stack())
			ok = false
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	r := s.Send(ctx, recipient, msg)
	if !r.OK {
		log.Printf("notify: %s delivery failed: %v", ch, r.Err)
	}
	return r.OK
}
