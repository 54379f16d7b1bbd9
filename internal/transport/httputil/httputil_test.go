package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "keyline/pkg/domain-errors"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeBadRequest, http.StatusBadRequest},
		{dErrors.CodeInvalidInput, http.StatusBadRequest},
		{dErrors.CodeValidation, http.StatusBadRequest},
		{dErrors.CodeOtpInvalid, http.StatusBadRequest},
		{dErrors.CodeOtpLockedOut, http.StatusBadRequest},
		{dErrors.CodeUnauthorized, http.StatusUnauthorized},
		{dErrors.CodeInvalidCredentials, http.StatusUnauthorized},
		{dErrors.CodeForbidden, http.StatusForbidden},
		{dErrors.CodeMethodDisabled, http.StatusForbidden},
		{dErrors.CodeRegistrationDisabled, http.StatusForbidden},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeTenantNotFound, http.StatusNotFound},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodeTenantContextMissing, http.StatusInternalServerError},
		{dErrors.CodeInternal, http.StatusInternalServerError},
		{dErrors.CodeUnavailable, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, dErrors.New(tc.code, "something happened"))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWriteErrorClientErrorsExposeTheMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.New(dErrors.CodeConflict, "identifier already in use"))

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "identifier already in use", resp.Error)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWriteErrorServerErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.Wrap(errors.New("dial tcp 10.0.0.5:5432: connection refused"),
		dErrors.CodeUnavailable, "could not look up user"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.NotContains(t, rec.Body.String(), "could not look up user")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestWriteErrorUnknownErrorsBecome500(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("some plain failure"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "some plain failure")
}

func TestWriteErrorFindsWrappedDomainErrors(t *testing.T) {
	inner := dErrors.New(dErrors.CodeOtpInvalid, "invalid or expired code")
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("verify step: %w", inner))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired code")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"status": "sent"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"sent"}`, rec.Body.String())
}

func TestDecode(t *testing.T) {
	type payload struct {
		Action string `json:"action"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"verify_otp"}`))
		got, err := Decode[payload](req)
		require.NoError(t, err)
		assert.Equal(t, "verify_otp", got.Action)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":`))
		_, err := Decode[payload](req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"x","bogus":true}`))
		_, err := Decode[payload](req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("empty body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		_, err := Decode[payload](req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
