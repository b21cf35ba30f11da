package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeWhatsApp(t *testing.T, status int, body string) (*httptest.Server, *recorder[whatsappRequest]) {
	t.Helper()
	rec := &recorder[whatsappRequest]{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req whatsappRequest
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v17.0/PHONEID/messages", r.URL.Path)
		assert.Equal(t, "Bearer WATOKEN", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec.record(req)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"081234567890":   "+6281234567890",
		"+6281234567890": "+6281234567890",
		"81234567890":    "+6281234567890",
		"0081234":        "+62081234",
		"":               "+62",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestWhatsAppSender_RequestShape(t *testing.T) {
	srv, rec := fakeWhatsApp(t, http.StatusOK, `{"messages":[{"id":"wamid.1"}]}`)
	s := NewWhatsAppSender(srv.URL, "WATOKEN", "PHONEID", AckStrict, time.Second)

	res := s.Send(context.Background(), "081234567890", "pesan")
	assert.True(t, res.OK)
	assert.NoError(t, res.Err)

	calls, req := rec.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "whatsapp", req.MessagingProduct)
	assert.Equal(t, "+6281234567890", req.To)
	assert.Equal(t, "template", req.Type)
	assert.Equal(t, "attendance_notification", req.Template.Name)
	assert.Equal(t, "id", req.Template.Language.Code)
	if assert.Len(t, req.Template.Components, 1) {
		c := req.Template.Components[0]
		assert.Equal(t, "body", c.Type)
		assert.Equal(t, []whatsappText{{Type: "text", Text: "pesan"}}, c.Parameters)
	}
}

// Lenient acknowledgement is the default: once a request is attempted the
// sender reports success whatever the provider said.
func TestWhatsAppSender_LenientAlwaysTrue(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"accepted", http.StatusOK, `{"messages":[{"id":"wamid.1"}]}`},
		{"rejected", http.StatusUnauthorized, `{"error":{"message":"Invalid OAuth access token","code":190}}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"no message id", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := fakeWhatsApp(t, tt.status, tt.body)
			s := NewWhatsAppSender(srv.URL, "WATOKEN", "PHONEID", AckLenient, time.Second)
			assert.True(t, s.Notify(context.Background(), "0812", "pesan"))
			calls, _ := rec.snapshot()
			assert.Equal(t, 1, calls)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	s := NewWhatsAppSender(url, "WATOKEN", "PHONEID", AckLenient, time.Second)
	res := s.Send(context.Background(), "0812", "pesan")
	assert.True(t, res.OK)
	assert.Error(t, res.Err, "transport failure is still reported in detail")
}

func TestWhatsAppSender_StrictRequiresAck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"accepted", http.StatusOK, `{"messages":[{"id":"wamid.1"}]}`, true},
		{"rejected", http.StatusUnauthorized, `{"error":{"message":"Invalid OAuth access token","code":190}}`, false},
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"no message id", http.StatusOK, `{"messages":[]}`, false},
		{"unparseable", http.StatusOK, `nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeWhatsApp(t, tt.status, tt.body)
			s := NewWhatsAppSender(srv.URL, "WATOKEN", "PHONEID", AckStrict, time.Second)
			assert.Equal(t, tt.want, s.Notify(context.Background(), "0812", "pesan"))
		})
	}
}
