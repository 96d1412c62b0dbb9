package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Stewz00/apisecure/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestRender(t *testing.T) {
	msg, err := Render(KindRecovery, "a@b.com", Payload{
		"reset_url": "http://localhost:3000/public/reset-password/abc",
		"expires":   "2026-01-01T13:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", msg.To)
	assert.Equal(t, "Password recovery", msg.Subject)
	assert.Contains(t, msg.HTML, `href="http://localhost:3000/public/reset-password/abc"`)
	assert.Contains(t, msg.HTML, "2026-01-01T13:00:00Z")
}

func TestRender_EscapesValues(t *testing.T) {
	msg, err := Render(KindWelcome, "a@b.com", Payload{"uid": "<script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := Render(Kind("nope"), "a@b.com", nil)
	assert.Error(t, err)
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{}
	logger, _ := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, DispatcherConfig{Workers: 2, QueueSize: 10}, logger, m)

	d.Notify(KindWelcome, "a@b.com", Payload{"uid": "user_1"})
	d.Notify(KindPasswordChange, "b@b.com", Payload{"time": "now"})
	d.Close()

	assert.Len(t, sender.messages(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("welcome", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("password_change", "sent")))
}

func TestDispatcher_NotifyDoesNotWaitForDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{block: make(chan struct{})}
	logger, _ := logtest.NewNullLogger()
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 4}, logger, nil)

	done := make(chan struct{})
	go func() {
		d.Notify(KindWelcome, "a@b.com", Payload{"uid": "user_1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled sender")
	}

	close(sender.block)
	d.Close()
	assert.Len(t, sender.messages(), 1)
}

func TestDispatcher_SendFailureIsLoggedOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{err: errors.New("smtp down")}
	logger, hook := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1}, logger, m)

	d.Notify(KindRecentAccess, "a@b.com", Payload{"uid": "u", "ip": "1.2.3.4", "time": "now"})
	d.Close()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "notification send failed", hook.LastEntry().Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("recent_access", "failed")))
}

func TestDispatcher_DropsWhenFullOrClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &recordingSender{block: make(chan struct{})}
	logger, _ := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 1}, logger, m)

	// the worker takes at most one job and blocks; the queue holds one more
	for i := 0; i < 5; i++ {
		d.Notify(KindWelcome, "a@b.com", Payload{"uid": "u"})
	}
	dropped := testutil.ToFloat64(m.Notifications.WithLabelValues("welcome", "dropped"))
	assert.GreaterOrEqual(t, dropped, 3.0)

	close(sender.block)
	d.Close()

	d.Notify(KindWelcome, "a@b.com", Payload{"uid": "u"})
	assert.Equal(t, dropped+1, testutil.ToFloat64(m.Notifications.WithLabelValues("welcome", "dropped")))
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "user", Password: "pass", From: "no-reply@example.com"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, string(msg)
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "a@b.com", Subject: "Password changed", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"a@b.com"}, gotTo)
	assert.True(t, strings.HasSuffix(gotBody, "\r\n\r\n<p>hi</p>"))
	assert.Contains(t, gotBody, "Content-Type: text/html")
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@b.com"}), context.Canceled)
}

func TestLogSender(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	require.NoError(t, NewLogSender(logger).Send(context.Background(), Message{To: "a@b.com", Subject: "s"}))
	assert.Equal(t, "a@b.com", hook.LastEntry().Data["to"])
}
