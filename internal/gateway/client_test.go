package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(apiURL, mediaURL string) *Client {
	return NewClient(nil, Options{
		APIKey:   "key-1",
		Source:   "5511888880000",
		APIURL:   apiURL,
		MediaURL: mediaURL,
	})
}

func TestSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Apikey"))
		assert.Equal(t, "GsApi/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp", r.PostFormValue("channel"))
		assert.Equal(t, "5511888880000", r.PostFormValue("source"))
		assert.Equal(t, "5511999990000", r.PostFormValue("destination"))
		assert.Equal(t, "oi, tudo bem?", r.PostFormValue("message"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "submitted", "messageId": "msg-9"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	id := client.SendText(context.Background(), "5511999990000", "oi, tudo bem?")
	assert.Equal(t, "msg-9", id)
}

func TestSendMediaImagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.PostFormValue("message.payload")), &payload))
		assert.Equal(t, "image", payload["type"])
		assert.Equal(t, "menu.png", payload["filename"])
		assert.Equal(t, "https://cdn.example.com/menu.png", payload["originalUrl"])
		assert.Equal(t, "https://cdn.example.com/menu-thumb.png", payload["previewUrl"])
		assert.Empty(t, payload["url"])
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "msg-1"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	id := client.SendMedia(context.Background(), "dest", MediaImage, "menu.png",
		"https://cdn.example.com/menu.png", "https://cdn.example.com/menu-thumb.png")
	assert.Equal(t, "msg-1", id)
}

func TestSendMediaAudioOmitsFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.PostFormValue("message.payload")), &payload))
		assert.Equal(t, "audio", payload["type"])
		assert.Equal(t, "https://cdn.example.com/reply.mp3", payload["url"])
		_, hasFilename := payload["filename"]
		assert.False(t, hasFilename)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "msg-2"})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	id := client.SendMedia(context.Background(), "dest", MediaAudio, "reply.mp3",
		"https://cdn.example.com/reply.mp3", "")
	assert.Equal(t, "msg-2", id)
}

func TestSendSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	assert.Empty(t, client.SendText(context.Background(), "dest", "oi"))
	assert.Empty(t, client.SendMedia(context.Background(), "dest", MediaVideo, "v.mpeg", "https://x/v.mpeg", ""))
}

func TestGetVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mybot/voice-7", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Apikey"))
		_, _ = w.Write([]byte("OggS-bytes"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	body := client.GetVoice(context.Background(), "mybot", "voice-7")
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "OggS-bytes", string(data))
}

func TestGetAudioFailureReturnsEmptyStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)
	body := client.GetAudio(context.Background(), srv.URL+"/missing.ogg")
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, data)
}
