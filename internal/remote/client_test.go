package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL+"/", "secret", zaptest.NewLogger(t).Sugar())
}

func TestPostBatch_DecodesResults(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, `{
			"activities": {"syncedIds": ["a1"], "skippedIds": ["a2"], "serverWins": [{"id": "a2", "name": "Server"}]},
			"activityKinds": {"syncedIds": [], "skippedIds": [], "serverWins": []}
		}`)
	})

	resp, err := c.PostBatch(context.Background(), "/users/activities/sync", map[string]any{
		"activities":    []map[string]string{{"id": "a1"}, {"id": "a2"}},
		"activityKinds": []any{},
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "/users/activities/sync", gotPath)
	require.Contains(t, gotBody, "activityKinds")

	require.Equal(t, []string{"a1"}, resp["activities"].SyncedIDs)
	require.Equal(t, []string{"a2"}, resp["activities"].SkippedIDs)
	require.Len(t, resp["activities"].ServerWins, 1)
	require.JSONEq(t, `{"id": "a2", "name": "Server"}`, string(resp["activities"].ServerWins[0]))
	require.Empty(t, resp["activityKinds"].SyncedIDs)
}

func TestPostBatch_NonSuccessIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.PostBatch(context.Background(), "/users/goals/sync", map[string]any{"goals": []any{}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusServiceUnavailable, se.Code)
	require.Equal(t, "overloaded", se.Body)
}

func TestPostBatch_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.PostBatch(context.Background(), "/users/tasks/sync", map[string]any{"tasks": []any{}})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestIconEndpoints(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			var up IconUpload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&up))
			require.Equal(t, IconUpload{Base64: "iVBOR", MimeType: "image/png"}, up)
			_, _ = io.WriteString(w, `{"iconUrl": "https://cdn/i.png", "iconThumbnailUrl": "https://cdn/t.png"}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	resp, err := c.UploadIcon(ctx, "a1", IconUpload{Base64: "iVBOR", MimeType: "image/png"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	urls, err := DecodeIconURLs(resp)
	require.NoError(t, err)
	require.Equal(t, "https://cdn/t.png", urls.IconThumbnailURL)

	resp, err = c.DeleteIcon(ctx, "a1")
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, http.StatusNotFound, resp.Status)

	require.Equal(t, []string{
		"POST /users/activities/a1/icon",
		"DELETE /users/activities/a1/icon",
	}, calls)
}

func TestDo_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(nil, url, "", nil)
	_, err := c.DeleteIcon(context.Background(), "a1")
	require.Error(t, err)
}
