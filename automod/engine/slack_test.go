package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)

	var got slackWebhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		assert.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := &SlackNotifier{WebhookURL: srv.URL, Client: srv.Client()}
	assert.NoError(n.BotAlert(context.Background(), "1234", "something broke"))
	assert.Contains(got.Text, "Guild: `1234`")
	assert.Contains(got.Text, "something broke")
}

func TestSlackNotifierRejected(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	n := &SlackNotifier{WebhookURL: srv.URL, Client: srv.Client()}
	err := n.BotAlert(context.Background(), "1234", "hello")
	assert.Error(err)
	assert.Contains(err.Error(), "status=403")
}
