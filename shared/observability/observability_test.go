package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposedOnScrapeHandler(t *testing.T) {
	provider, handler, err := SetupPrometheusMetrics("cio-chat-test")
	require.NoError(t, err)

	m, err := NewMetrics(provider)
	require.NoError(t, err)

	m.ViewOpened()
	m.AuthSubmitted("login", nil)
	m.AuthSubmitted("register", errors.New("weak password"))
	m.MessageSent(nil)
	m.ViewFaulted()
	m.ViewClosed()

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "chat_auth_submissions_total")
	assert.Contains(t, text, `mode="register"`)
	assert.Contains(t, text, `outcome="error"`)
	assert.Contains(t, text, "chat_messages_sent_total")
	assert.Contains(t, text, "chat_view_faults_total")
	assert.Contains(t, text, "chat_views_active")
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() {
		r.ViewOpened()
		r.AuthSubmitted("login", nil)
		r.MessageSent(errors.New("x"))
		r.ViewFaulted()
		r.ViewClosed()
	})
}
