package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":0,"message":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(WithTimeout(5 * time.Second))
	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	err := client.PostJSON(context.Background(), server.URL, map[string]string{"key": "value"}, &result)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Code)
	assert.Equal(t, "ok", result.Message)
}

func TestPostJSONNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"参数错误"}`))
	}))
	defer server.Close()

	client := NewClient()
	err := client.PostJSON(context.Background(), server.URL, nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestDoRetriesOn5xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithRetries(3))
	resp, err := client.Do(context.Background(), http.MethodPost, server.URL, []byte(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoAppliesDefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithHeaders(map[string]string{"Authorization": "Bearer secret"}))
	resp, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp.Body.Close()
}
