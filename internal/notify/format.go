package notify

import (
	"fmt"
	"html"
	"strings"
)

// Student carries the roster fields rendered in a notification.
type Student struct {
	Name  string
	NISN  string
	Class string
}

const footer = "Pesan ini dikirim otomatis oleh sistem absensi sekolah."

// markup wraps text in a channel's bold convention and escapes field values.
type markup struct {
	bold   func(string) string
	escape func(string) string
}

var (
	telegramMarkup = markup{
		bold:   func(s string) string { return "<b>" + s + "</b>" },
		escape: html.EscapeString,
	}
	whatsappMarkup = markup{
		bold:   func(s string) string { return "*" + s + "*" },
		escape: func(s string) string { return s },
	}
)

// FormatTelegram renders an attendance message using Telegram HTML markup.
func FormatTelegram(st Student, status, tm, date string) string {
	return format(telegramMarkup, st, status, tm, date)
}

// FormatWhatsApp renders an attendance message using WhatsApp emphasis.
func FormatWhatsApp(st Student, status, tm, date string) string {
	return format(whatsappMarkup, st, status, tm, date)
}

func format(m markup, st Student, status, tm, date string) string {
	name := m.escape(st.Name)
	tm, date = m.escape(tm), m.escape(date)
	if isPresent(status) {
		return fmt.Sprintf("✅ %s telah hadir di sekolah pada %s pukul %s WIB.", m.bold(name), date, tm)
	}

	var b strings.Builder
	b.WriteString("📋 " + m.bold("Informasi Kehadiran Siswa") + "\n\n")
	fmt.Fprintf(&b, "Nama : %s\n", name)
	fmt.Fprintf(&b, "NISN : %s\n", dash(m.escape(st.NISN)))
	fmt.Fprintf(&b, "Kelas : %s\n", dash(m.escape(st.Class)))
	fmt.Fprintf(&b, "Status : %s\n", structuredLabel(status))
	fmt.Fprintf(&b, "Waktu : %s\n", dash(tm))
	fmt.Fprintf(&b, "Tanggal : %s\n\n", dash(date))
	b.WriteString(footer)
	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
