package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var budi = Student{Name: "Budi Santoso", NISN: "0051234567", Class: "7A"}

func TestFormatTelegram_Present(t *testing.T) {
	msg := FormatTelegram(budi, "hadir", "08:00", "2024-01-10")
	assert.Contains(t, msg, "<b>Budi Santoso</b> telah hadir di sekolah pada 2024-01-10 pukul 08:00 WIB.")
	assert.NotContains(t, msg, "\n")
}

func TestFormatWhatsApp_Present(t *testing.T) {
	msg := FormatWhatsApp(budi, "present", "07:15", "2024-02-01")
	assert.Contains(t, msg, "*Budi Santoso* telah hadir di sekolah pada 2024-02-01 pukul 07:15 WIB.")
}

func TestFormat_PresentIgnoresCase(t *testing.T) {
	for _, token := range []string{"HADIR", "Hadir", "PRESENT", "Present"} {
		assert.Contains(t, FormatTelegram(budi, token, "08:00", "2024-01-10"), "telah hadir", token)
	}
}

func TestFormat_PresentKeepsEmptyGaps(t *testing.T) {
	msg := FormatWhatsApp(budi, "hadir", "", "")
	assert.Contains(t, msg, "telah hadir di sekolah pada  pukul  WIB.")
}

func TestFormat_StructuredStatuses(t *testing.T) {
	tests := []struct {
		token string
		label string
	}{
		{"sakit", "Sakit"},
		{"sick", "Sakit"},
		{"izin", "Izin"},
		{"permitted", "Izin"},
		{"alpha", "Alpha"},
		{"absent", "Alpha"},
		{"terlambat", "Alpha"},
		{"", "Alpha"},
		{"Sakit", "Alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			for _, msg := range []string{
				FormatTelegram(budi, tt.token, "08:00", "2024-01-10"),
				FormatWhatsApp(budi, tt.token, "08:00", "2024-01-10"),
			} {
				assert.Contains(t, msg, "Nama : Budi Santoso")
				assert.Contains(t, msg, "NISN : 0051234567")
				assert.Contains(t, msg, "Kelas : 7A")
				assert.Contains(t, msg, "Status : "+tt.label+"\n")
				assert.Contains(t, msg, "Waktu : 08:00")
				assert.Contains(t, msg, "Tanggal : 2024-01-10")
				assert.Contains(t, msg, footer)
				assert.NotContains(t, msg, "telah hadir")
			}
		})
	}
}

func TestFormat_MissingFieldsRenderDash(t *testing.T) {
	msg := FormatTelegram(Student{Name: "Siti"}, "izin", "", "")
	assert.Contains(t, msg, "NISN : -\n")
	assert.Contains(t, msg, "Kelas : -\n")
	assert.Contains(t, msg, "Waktu : -\n")
	assert.Contains(t, msg, "Tanggal : -\n")
}

func TestFormat_ChannelMarkupDiffers(t *testing.T) {
	tg := FormatTelegram(budi, "sakit", "08:00", "2024-01-10")
	wa := FormatWhatsApp(budi, "sakit", "08:00", "2024-01-10")
	assert.Contains(t, tg, "<b>Informasi Kehadiran Siswa</b>")
	assert.Contains(t, wa, "*Informasi Kehadiran Siswa*")
	assert.NotEqual(t, tg, wa)
}

func TestFormatTelegram_EscapesHTML(t *testing.T) {
	msg := FormatTelegram(Student{Name: "A <b>&"}, "hadir", "08:00", "2024-01-10")
	assert.Contains(t, msg, "<b>A &lt;b&gt;&amp;</b>")
	assert.Contains(t, FormatWhatsApp(Student{Name: "A <b>&"}, "hadir", "08:00", "2024-01-10"), "*A <b>&*")
}

func TestFormatTelegram_EscapesTimeAndDate(t *testing.T) {
	present := FormatTelegram(Student{Name: "Budi"}, "hadir", "08:00<", "10 <Jan>")
	assert.Equal(t, "✅ <b>Budi</b> telah hadir di sekolah pada 10 &lt;Jan&gt; pukul 08:00&lt; WIB.", present)

	structured := FormatTelegram(Student{Name: "Budi"}, "sakit", "a&b", "<x>")
	assert.Contains(t, structured, "Waktu : a&amp;b\n")
	assert.Contains(t, structured, "Tanggal : &lt;x&gt;\n")
	assert.NotContains(t, structured, "<x>")

	assert.Contains(t, FormatWhatsApp(Student{Name: "Budi"}, "sakit", "a&b", "<x>"), "Tanggal : <x>\n")
}

func TestFormat_Idempotent(t *testing.T) {
	for _, token := range AcceptedTokens() {
		assert.Equal(t,
			FormatTelegram(budi, token, "08:00", "2024-01-10"),
			FormatTelegram(budi, token, "08:00", "2024-01-10"))
		assert.Equal(t,
			FormatWhatsApp(budi, token, "08:00", "2024-01-10"),
			FormatWhatsApp(budi, token, "08:00", "2024-01-10"))
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"hadir": StatusPresent, "present": StatusPresent,
		"sakit": StatusSick, "sick": StatusSick,
		"izin": StatusPermitted, "permitted": StatusPermitted,
		"alpha": StatusAbsent, "absent": StatusAbsent,
	}
	for token, want := range tests {
		got, ok := ParseStatus(token)
		assert.True(t, ok, token)
		assert.Equal(t, want, got, token)
	}

	_, ok := ParseStatus("Hadir")
	assert.False(t, ok, "matching is case-sensitive")
	_, ok = ParseStatus("late")
	assert.False(t, ok)
}

func TestStatusTokenAndDisplay(t *testing.T) {
	assert.Equal(t, "hadir", StatusPresent.Token())
	assert.Equal(t, "izin", StatusPermitted.Token())
	assert.Equal(t, "Sakit", StatusSick.Display())
	assert.Equal(t, "Alpha", Status("unknown").Display())
	assert.Len(t, AcceptedTokens(), 8)
}
