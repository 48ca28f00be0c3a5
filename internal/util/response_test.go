package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTranscript), http.StatusBadRequest},
		{fmt.Errorf("%w: %w", ErrNotFound, ErrQuestionNotFound), http.StatusNotFound},
		{ErrPermissionDenied, http.StatusForbidden},
		{fmt.Errorf("score: %w", fmt.Errorf("%w: %w", ErrUpstream, ErrInvalidConfidence)), http.StatusBadGateway},
		{fmt.Errorf("%w: disk full", ErrPersistence), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondError_HidesServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err         error
		wantCode    int
		wantMessage string
	}{
		{fmt.Errorf("%w: %w", ErrValidation, ErrEmptyInput), http.StatusBadRequest, "validation failed: audio or text answer is required"},
		{fmt.Errorf("%w: dial tcp 10.0.0.1:80", ErrUpstream), http.StatusBadGateway, "Scoring service unavailable, please try again later"},
		{fmt.Errorf("%w: deadlock", ErrPersistence), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		RespondError(c, tc.err)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.wantCode, w.Code)
		assert.Equal(t, tc.wantCode, resp.Code)
		assert.Equal(t, tc.wantMessage, resp.Message)
	}
}
