// Package worker turns queued notification jobs into guardian messages.
package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"presensi/internal/config"
	"presensi/internal/notify"
	"presensi/internal/queue"
)

// Processor handles one notification job.
type Processor interface {
	ProcessNotification(ctx context.Context, recordID string) (notify.DeliveryResult, error)
}

// NewDispatcher builds the senders enabled in cfg and registers their
// metrics on reg (nil disables metrics).
func NewDispatcher(cfg config.App, reg prometheus.Registerer) *notify.Dispatcher {
	var metrics *notify.Metrics
	if reg != nil {
		metrics = notify.NewMetrics(reg)
	}

	var tg, wa notify.Sender
	if cfg.TelegramEnabled() {
		s := notify.NewTelegramSender(cfg.TelegramAPIBase, cfg.TelegramBotToken, cfg.NotifyTimeout)
		s.Metrics = metrics
		tg = s
	} else {
		log.Println("worker: telegram not configured (TELEGRAM_BOT_TOKEN not set)")
	}
	if cfg.WhatsAppEnabled() {
		policy := notify.AckLenient
		if cfg.WhatsAppStrictAck {
			policy = notify.AckStrict
		}
		s := notify.NewWhatsAppSender(cfg.WhatsAppAPIBase, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, policy, cfg.NotifyTimeout)
		s.Metrics = metrics
		wa = s
	} else {
		log.Println("worker: whatsapp not configured (WHATSAPP_TOKEN / WHATSAPP_PHONE_NUMBER_ID not set)")
	}
	return notify.NewDispatcher(tg, wa, cfg.NotifyTimeout, metrics)
}

// Run consumes jobs from q until ctx is done or the queue closes.
// A failing job is logged and skipped.
func Run(ctx context.Context, q queue.Queue, p Processor) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeNotify {
			log.Printf("worker: ignoring %q message", msg.Type)
			continue
		}

		id := string(msg.Body)
		res, err := p.ProcessNotification(ctx, id)
		if err != nil {
			log.Printf("worker: notify for record %s failed: %v", id, err)
			continue
		}
		log.Printf("worker: record %s delivered telegram=%t whatsapp=%t", id, res.Telegram, res.WhatsApp)
	}

	log.Println("worker stopped")
	return nil
}
