package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSender struct {
	name   string
	titles []string
	err    error
}

func (m *memSender) Send(_ context.Context, title, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.titles = append(m.titles, title)
	return nil
}

func (m *memSender) Name() string { return m.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{"kill_switch"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "winddown", "ignored"))
	require.NoError(t, n.Notify(context.Background(), "kill_switch", "loss breached"))

	assert.Equal(t, []string{"KILL SWITCH"}, s.titles)
}

func TestNotifierEmptyFilterAllowsEverything(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "halted", "gateway down"))
	require.NoError(t, n.Notify(context.Background(), "custom-event", "raw title"))

	assert.Equal(t, []string{"Session halted", "custom-event"}, s.titles)
}

func TestNotifierSenderFailureDoesNotBlockOthers(t *testing.T) {
	broken := &memSender{name: "broken", err: errors.New("boom")}
	ok := &memSender{name: "ok"}
	n := NewNotifier([]Sender{broken, ok}, nil, testLogger())

	err := n.Notify(context.Background(), "winddown", "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, ok.titles, 1)
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Winddown", "flattened"))
	assert.Contains(t, gotBody, "**Winddown**")
}

func TestTelegramSenderReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegramSender("token", "chat")
	tg.baseURL = srv.URL
	err := tg.Send(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
