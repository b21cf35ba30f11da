// Package guardianbot runs the Telegram bot guardians use to subscribe to
// attendance notifications for their child.
package guardianbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"presensi/internal/attendance"
)

// Linker stores a guardian's chat id against a student.
type Linker interface {
	LinkTelegram(ctx context.Context, nisn, chatID string) error
}

// Bot wraps the Telegram bot API.
type Bot struct {
	api    *tgbotapi.BotAPI
	linker Linker
}

// New creates a Bot. Returns nil if token is empty (bot disabled).
// apiBase overrides https://api.telegram.org when set.
func New(token, apiBase string, linker Linker) (*Bot, error) {
	if token == "" {
		return nil, nil
	}
	endpoint := tgbotapi.APIEndpoint
	if apiBase != "" {
		endpoint = strings.TrimRight(apiBase, "/") + "/bot%s/%s"
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("guardianbot.New: %w", err)
	}
	return &Bot{api: api, linker: linker}, nil
}

// Start polls for updates until ctx is done. Must be called in a goroutine.
func (b *Bot) Start(ctx context.Context) {
	if b == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	log.Printf("guardianbot: polling as @%s", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			text := Reply(ctx, b.linker, update.Message)
			if text == "" {
				continue
			}
			b.reply(update.Message.Chat.ID, text)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("guardianbot: reply to %d: %v", chatID, err)
	}
}

const (
	helpText = "Kirim /daftar <NISN> untuk menerima notifikasi kehadiran anak Anda.\n" +
		"Contoh: /daftar 0051234567"
	linkedText   = "Berhasil. Notifikasi kehadiran untuk NISN %s akan dikirim ke chat ini."
	notFoundText = "NISN %s tidak ditemukan. Periksa kembali nomor NISN atau hubungi sekolah."
	failedText   = "Pendaftaran gagal, silakan coba lagi nanti."
)

// linkedElsewhereText is sent when the student already has a guardian chat;
// only school staff can change it.
const linkedElsewhereText = "NISN %s sudah terhubung dengan akun Telegram lain. Hubungi pihak sekolah untuk mengganti nomor wali."

// Reply handles one incoming message and returns the text to send back,
// or "" when the message should be ignored.
func Reply(ctx context.Context, linker Linker, msg *tgbotapi.Message) string {
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return ""
	}
	switch msg.Command() {
	case "start", "daftar":
		nisn := strings.TrimSpace(msg.CommandArguments())
		if nisn == "" {
			return helpText
		}
		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		err := linker.LinkTelegram(ctx, nisn, chatID)
		switch {
		case errors.Is(err, attendance.ErrStudentNotFound):
			return fmt.Sprintf(notFoundText, nisn)
		case errors.Is(err, attendance.ErrTelegramLinked):
			log.Printf("guardianbot: refused link of %s to chat %s: already linked", nisn, chatID)
			return fmt.Sprintf(linkedElsewhereText, nisn)
		case err != nil:
			log.Printf("guardianbot: link %s to chat %s: %v", nisn, chatID, err)
			return failedText
		}
		log.Printf("guardianbot: linked %s to chat %s", nisn, chatID)
		return fmt.Sprintf(linkedText, nisn)
	case "help", "bantuan":
		return helpText
	default:
		return "Perintah tidak dikenal. " + helpText
	}
}
