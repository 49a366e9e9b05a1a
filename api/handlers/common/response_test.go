package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performRequest(handler gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/test", handler)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)
	return w
}

func TestSuccess(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Success(c, map[string]string{"key": "value"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
}

func TestError(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		Error(c, http.StatusConflict, "订单已结算")
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "订单已结算", resp.Message)
}

func TestList(t *testing.T) {
	w := performRequest(func(c *gin.Context) {
		List(c, []string{"a", "b"}, 1, 20, 42)
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.EqualValues(t, 42, resp.Pagination.Total)
	assert.Equal(t, 3, resp.Pagination.TotalPage)
}
