package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presensi/internal/config"
	"presensi/internal/notify"
	"presensi/internal/queue"
)

type fakeProcessor struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeProcessor) ProcessNotification(ctx context.Context, recordID string) (notify.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordID)
	if recordID == "bad" {
		return notify.DeliveryResult{}, errors.New("record not found")
	}
	return notify.DeliveryResult{Telegram: true}, nil
}

func (f *fakeProcessor) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func TestRun_ProcessesNotifyJobs(t *testing.T) {
	q := queue.NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, m := range []queue.Message{
		{Type: queue.TypeNotify, Body: []byte("rec-1")},
		{Type: "checkin", Body: []byte("ignored")},
		{Type: queue.TypeNotify, Body: []byte("bad")},
		{Type: queue.TypeNotify, Body: []byte("rec-2")},
	} {
		require.NoError(t, q.Publish(ctx, m))
	}

	p := &fakeProcessor{}
	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, p) }()

	require.Eventually(t, func() bool { return len(p.ids()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"rec-1", "bad", "rec-2"}, p.ids())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewDispatcher_DisabledChannels(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewDispatcher(config.App{NotifyTimeout: time.Second}, reg)

	res := d.SendAttendanceNotification(context.Background(), notify.Notification{
		Student: notify.Student{Name: "Budi"},
		Status:  "hadir",
		Channel: notify.ChannelBoth,
		Contact: notify.ContactInfo{TelegramID: "1", WhatsAppNumber: "0812"},
	})
	assert.Equal(t, notify.DeliveryResult{}, res)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
