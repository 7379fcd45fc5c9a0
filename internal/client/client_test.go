package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAAHUL-tech/Mini-Dynamo/internal/vclock"
)

func TestPutEscapesKeyPathSegment(t *testing.T) {
	const tricky = "a/b?c#d e"

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decoded, err := url.PathUnescape(r.URL.EscapedPath()[len("/kv/"):])
		require.NoError(t, err)
		gotKey = decoded
		json.NewEncoder(w).Encode(PutResponse{Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	resp, err := c.Put(context.Background(), tricky, "v", nil, Quorum{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, tricky, gotKey)
}

func TestGetSendsCapitalizedNRQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(GetResponse{Versions: []Version{
			{Value: json.RawMessage(`"v"`), VectorClock: vclock.Clock{"n1": 1}},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	resp, err := c.Get(context.Background(), "k", Quorum{N: 3, R: 2})
	require.NoError(t, err)
	require.Len(t, resp.Versions, 1)
	assert.Contains(t, gotQuery, "N=3")
	assert.Contains(t, gotQuery, "R=2")
}

func TestPutQuorumFailureSurfacesReasonAsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "reason": "quorum"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Put(context.Background(), "k", "v", nil, Quorum{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "quorum", apiErr.Message)
}

func TestGetQuorumFailureSurfacesErrorAsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"error": "quorum"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Get(context.Background(), "k", Quorum{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quorum", apiErr.Message)
}

func TestDeleteSendsNAndWInBody(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Delete(context.Background(), "k", vclock.Clock{"n1": 2}, Quorum{N: 3, W: 2})
	require.NoError(t, err)
	assert.Equal(t, float64(3), body["N"])
	assert.Equal(t, float64(2), body["W"])
}
