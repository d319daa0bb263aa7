package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookClient_Send(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewWebhookClient(2*time.Second, testLogger())
	err := c.Send(context.Background(), server.URL, "Hi Asha, time to practice!")
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]string{"text": "Hi Asha, time to practice!"}, gotBody)
}

func TestWebhookClient_NonSuccessStatusIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewWebhookClient(2*time.Second, testLogger())
	err := c.Send(context.Background(), server.URL, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookClient_UnreachableHostIsError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewWebhookClient(time.Second, testLogger())
	err := c.Send(context.Background(), url, "hello")
	assert.Error(t, err)
}
