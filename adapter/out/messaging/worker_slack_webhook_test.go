package messaging

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"triage_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlackWebhook_RequiresURL(t *testing.T) {
	_, err := NewSlackWebhook("", nil)
	assert.Error(t, err)
}

func TestSlackWebhook_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	hook, err := NewSlackWebhook(srv.URL, srv.Client())
	require.NoError(t, err)

	msg := &out.ChatMessage{
		Channel: "#alerts",
		Blocks: []out.Block{
			{Type: out.BlockHeader, Text: out.PlainText("📨 關鍵字比對 注意郵件")},
			{Type: out.BlockDivider},
		},
	}
	require.NoError(t, hook.Send(context.Background(), msg))

	assert.Equal(t, "#alerts", got["channel"])
	blocks, ok := got["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)
	header := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	assert.Equal(t, "📨 關鍵字比對 注意郵件", header["text"].(map[string]any)["text"])
	assert.NotContains(t, got, "text")
}

func TestSlackWebhook_SendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no_service"))
	}))
	defer srv.Close()

	hook, err := NewSlackWebhook(srv.URL, srv.Client())
	require.NoError(t, err)

	err = hook.Send(context.Background(), &out.ChatMessage{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no_service")
}
