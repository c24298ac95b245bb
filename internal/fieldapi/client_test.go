package fieldapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetFormSubmissionsSendsTokenAndQuery(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		require.Equal(t, "/api/v1/data/123.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_uuid": "a"}, {"_uuid": "b"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	since := time.Date(2015, 6, 1, 12, 30, 0, 0, time.UTC)
	subs, err := c.GetFormSubmissions(context.Background(), 123, since)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "Token secret-key", gotAuth)
	require.Equal(t, `{"_submission_time": {"$gt": "2015-06-01T12:30:00"}}`, gotQuery)
}

func TestGetFormSubmissionsZeroSinceOmitsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.False(t, r.URL.Query().Has("query"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").GetFormSubmissions(context.Background(), 5, time.Time{})
	require.NoError(t, err)
}

func TestClientErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "no such form"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").GetFormDefinition(context.Background(), 99)
	require.Error(t, err)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, http.StatusNotFound, ce.StatusCode)
	require.Equal(t, "no such form", ce.Message)
}

func TestClientErrorOnNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway timeout</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").GetFormDefinition(context.Background(), 1)
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 0, ce.StatusCode)
}
