package revolt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches a channel with the session token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/channels/c1", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("X-Session-Token"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"_id":"c1","channel_type":"Group","name":"g","owner":"u1","recipients":["u1","u2"]}`))
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		ch, err := tr.GetChannel(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, APIChannel{
			ID:          "c1",
			ChannelType: ChannelTypeGroup,
			Name:        "g",
			Owner:       "u1",
			Recipients:  []string{"u1", "u2"},
		}, ch)
	})

	t.Run("bot clients send the bot token header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "bot-secret", r.Header.Get("X-Bot-Token"))
			assert.Empty(t, r.Header.Get("X-Session-Token"))
			w.Write([]byte(`{"_id":"u1","username":"alice"}`))
		}))
		defer srv.Close()

		c := NewClient("bot-secret", WithBaseURL(srv.URL), WithBot(true))
		u, err := c.FetchUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username())
	})

	t.Run("posts messages as JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/channels/c1/messages", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req SendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(APIMessage{ID: "m1", Channel: "c1", Author: "u1", Content: req.Content, Nonce: req.Nonce})
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		msg, err := tr.PostMessage(ctx, "c1", SendMessageRequest{Content: "hi", Nonce: "n1"})
		require.NoError(t, err)
		assert.Equal(t, APIMessage{ID: "m1", Channel: "c1", Author: "u1", Content: "hi", Nonce: "n1"}, msg)
	})

	t.Run("deletes channels", func(t *testing.T) {
		var called bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/channels/c1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		require.NoError(t, tr.DeleteChannel(ctx, "c1"))
		assert.True(t, called)
	})

	t.Run("maps error responses to HTTPError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"type":"NotFound"}`))
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		_, err := tr.GetMessage(ctx, "c1", "m1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 404, httpErr.StatusCode)
		assert.Equal(t, "NotFound", httpErr.Type)
	})

	t.Run("keeps plain-text error bodies", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		_, err := tr.GetUser(ctx, "u1")
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 502, httpErr.StatusCode)
		assert.Equal(t, "upstream down", httpErr.Message)
	})

	t.Run("wraps network failures", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		tr := NewHTTPTransport(url, "secret", nil)
		_, err := tr.GetChannel(ctx, "c1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("wraps undecodable bodies", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
		_, err := tr.GetChannel(ctx, "c1")
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("escapes ids in paths", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users/a%2Fb", r.URL.EscapedPath())
			w.Write([]byte(`{"_id":"a/b","username":"x"}`))
		}))
		defer srv.Close()

		tr := NewHTTPTransport(srv.URL, "", srv.Client())
		_, err := tr.GetUser(ctx, "a/b")
		require.NoError(t, err)
	})
}
