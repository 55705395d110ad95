/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/formsync/config"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/forms", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func serve(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	r := newRouter(SecretKeyAuthMiddleware("s3cret"))

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{name: "root is open", path: "/", want: http.StatusOK},
		{name: "missing key", path: "/api/forms", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/forms", headers: map[string]string{KeyHeader: "nope"}, want: http.StatusUnauthorized},
		{name: "valid key", path: "/api/forms", headers: map[string]string{KeyHeader: "s3cret"}, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(r, tt.path, tt.headers).Code)
		})
	}
}

func TestSecretKeyAuthMiddleware_NotConfigured(t *testing.T) {
	r := newRouter(SecretKeyAuthMiddleware(""))
	assert.Equal(t, http.StatusInternalServerError, serve(r, "/api/forms", map[string]string{KeyHeader: "x"}).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rps, burst, cleanup := 1.0, 1, 60
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  &rps,
		Burst:              &burst,
		CleanupIntervalSec: &cleanup,
	}}
	r := newRouter(RateLimitMiddleware(conf))

	assert.Equal(t, http.StatusOK, serve(r, "/api/forms", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/api/forms", nil).Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := newRouter(RateLimitMiddleware(&config.Configuration{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/api/forms", nil).Code)
	}
}
