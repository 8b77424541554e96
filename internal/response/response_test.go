package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Locale())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusCreated, "wallet.created", gin.H{"id": 1}) })
	r.GET("/fail", func(c *gin.Context) { Fail(c, http.StatusBadRequest, "error.insufficient") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Status)
	assert.Equal(t, http.StatusCreated, env.Code)
	assert.Equal(t, "Wallet created", env.Message)

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("Accept-Language", "ar")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["status"])
	assert.Equal(t, float64(400), raw["code"])
	assert.Nil(t, raw["data"])
	assert.Equal(t, "الرصيد غير كاف", raw["message"])
}
