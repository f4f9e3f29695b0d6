package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riozmarkets/settlement/internal/domain"
)

type stubSender struct {
	name string
	sent []string
	err  error
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.sent = append(s.sent, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_EventFilter(t *testing.T) {
	chat := &stubSender{name: "chat"}
	n := NewNotifier([]Sender{chat}, []string{EventReconcileMismatch}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventSettleFailed, "ignored", ""))
	require.Empty(t, chat.sent)

	require.NoError(t, n.Notify(context.Background(), EventReconcileMismatch, "delivered", ""))
	require.Equal(t, []string{"delivered"}, chat.sent)
}

func TestNotify_EmptyFilterAllowsEverything(t *testing.T) {
	chat := &stubSender{name: "chat"}
	n := NewNotifier([]Sender{chat}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventFeedPaused, "outage", ""))
	require.Len(t, chat.sent, 1)
}

func TestNotify_SenderFailureDoesNotBlockOthers(t *testing.T) {
	broken := &stubSender{name: "telegram", err: errors.New("api down")}
	healthy := &stubSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.Notify(context.Background(), EventFeedPaused, "outage", "")
	require.Error(t, err)
	require.Len(t, healthy.sent, 1)
}

func TestAlertReport_Formats(t *testing.T) {
	chat := &stubSender{name: "chat"}
	n := NewNotifier([]Sender{chat}, nil, discardLogger())

	err := n.AlertReport(context.Background(), domain.ReconciliationReport{
		Currency:    domain.CurrencyCoin,
		Severity:    domain.SeverityUrgent,
		Discrepancy: 500,
	})
	require.NoError(t, err)
	require.Len(t, chat.sent, 1)
	require.Contains(t, chat.sent[0], "urgent")
}
