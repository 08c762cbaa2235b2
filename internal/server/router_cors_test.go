package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSPreflightAllowsAdminMethods(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware())
	router.PUT("/api/communities/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/communities/:id/evaluate", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflights := map[string]string{
		http.MethodPut:  "/api/communities/guild-1",
		http.MethodPost: "/api/communities/guild-1/evaluate",
	}
	for method, path := range preflights {
		request := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
		request.Header.Set("Origin", "https://admin.example.com")
		request.Header.Set("Access-Control-Request-Method", method)
		request.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)

		if recorder.Code != http.StatusNoContent {
			t.Fatalf("%s preflight: expected status %d, got %d", method, http.StatusNoContent, recorder.Code)
		}
		allowHeaders := strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers"))
		if !strings.Contains(allowHeaders, "authorization") {
			t.Fatalf("%s preflight: expected Authorization in allowed headers, got %q", method, allowHeaders)
		}
		allowMethods := recorder.Header().Get("Access-Control-Allow-Methods")
		if !strings.Contains(allowMethods, method) {
			t.Fatalf("%s preflight: expected %s in allowed methods, got %q", method, method, allowMethods)
		}
	}
}
