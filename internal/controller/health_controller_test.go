package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"recall_edu_backend/internal/testutil"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)

	cases := []struct {
		name       string
		ffmpeg     func(ctx context.Context) (string, error)
		wantStatus string
		wantFFmpeg string
	}{
		{"ffmpeg installed", func(context.Context) (string, error) { return "ffmpeg version 6.1", nil }, "ok", "up"},
		{"ffmpeg missing", func(context.Context) (string, error) { return "", errors.New("executable file not found") }, "degraded", "down"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			health := NewHealthController(db, nil)
			health.FFmpeg = tc.ffmpeg

			r := gin.New()
			r.GET("/api/health", health.HealthCheck)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Data struct {
					Status     string `json:"status"`
					Components struct {
						Database string `json:"database"`
						Cache    string `json:"cache"`
						FFmpeg   struct {
							Status  string `json:"status"`
							Version string `json:"version"`
						} `json:"ffmpeg"`
					} `json:"components"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantStatus, resp.Data.Status)
			assert.Equal(t, "up", resp.Data.Components.Database)
			assert.Equal(t, "disabled", resp.Data.Components.Cache)
			assert.Equal(t, tc.wantFFmpeg, resp.Data.Components.FFmpeg.Status)
		})
	}
}
