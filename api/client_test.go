// ABOUTME: Tests for the branding API client
// ABOUTME: Covers path fallback probing, auth headers, cursors, and error statuses
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/callsign/models"
)

func recordsResponse() FetchResult {
	return FetchResult{
		Records: []models.BrandingRecord{
			{PhoneNumber: "+15551230001", BrandName: "Acme", UpdatedAt: time.Now().UTC()},
		},
		NextCursor: "cursor-2",
	}
}

func TestFetchSendsAuthAndCursor(t *testing.T) {
	var gotAuth, gotCursor string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCursor = r.URL.Query().Get("cursor")
		_ = json.NewEncoder(w).Encode(recordsResponse())
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "secret-key"})
	result, err := client.Fetch(context.Background(), "cursor-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "cursor-1", gotCursor)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, "cursor-2", result.NextCursor)
}

func TestFetchProbesFallbackPath(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/branding/records" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(recordsResponse())
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	result, err := client.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, result.Records, 1)
	assert.Equal(t, []string{"/v2/branding/records", "/v1/branding/records"}, paths)

	// The working path is remembered: no more probing.
	_, err = client.Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/v1/branding/records", paths[len(paths)-1])
	assert.Len(t, paths, 3)
}

func TestFetchAllPathsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no branding records endpoint")
}

func TestFetchServerErrorIsNotProbed(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	_, err := client.Fetch(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 500 is a real failure, not a path probe miss")
}

func TestReportEvents(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = make([]byte, r.ContentLength)
		_, _ = r.Body.Read(gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	err := client.ReportEvents(context.Background(), []byte(`[{"name":"sync_cycle"}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"sync_cycle"}]`, string(gotBody))
}

func TestReportEventsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	err := client.ReportEvents(context.Background(), []byte(`[]`))
	require.Error(t, err)
}
