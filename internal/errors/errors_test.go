package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation with field",
			err:  NewValidationError("scan target must not be empty", "target", ""),
			want: "[VALIDATION] scan target must not be empty (field: target)",
		},
		{
			name: "validation without field",
			err:  &ValidationError{Code: CodeValidation, Message: "bad input"},
			want: "[VALIDATION] bad input",
		},
		{
			name: "submission with target",
			err:  WrapSubmissionError("backend rejected scan request", "10.0.0.0/24", nil),
			want: "[SUBMISSION] backend rejected scan request (target: 10.0.0.0/24)",
		},
		{
			name: "transport with operation",
			err:  NewTransportError(CodeBackendUnavailable, "connection refused", "get_scan"),
			want: "[BACKEND_UNAVAILABLE] connection refused (operation: get_scan)",
		},
		{
			name: "scan with job id",
			err:  NewScanError(CodeScanFailed, "scan failed on the backend", "scan-7"),
			want: "[SCAN_FAILED] scan failed on the backend (job: scan-7)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeValidation, GetCode(ErrEmptyTarget()))
	assert.Equal(t, CodeValidation, GetCode(ErrUnknownScanType("smb_scan")))
	assert.Equal(t, CodePollExpired, GetCode(ErrPollExpired("scan-1", 5, nil)))
	assert.Equal(t, CodeConfiguration, GetCode(NewConfigFieldError("bad interval", "polling.interval", -1)))
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain error")))
	assert.Equal(t, CodeUnknown, GetCode(nil))
}

func TestGetCodeThroughWrapping(t *testing.T) {
	cause := NewTransportError(CodeBackendUnavailable, "connection refused", "get_scan")
	wrapped := fmt.Errorf("fetch attempt 3: %w", cause)

	assert.Equal(t, CodeBackendUnavailable, GetCode(wrapped))
	assert.True(t, IsCode(wrapped, CodeBackendUnavailable))
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	t.Run("transport", func(t *testing.T) {
		err := WrapTransportError("request failed", "list_devices", cause)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("submission", func(t *testing.T) {
		err := WrapSubmissionError("backend rejected scan request", "10.0.0.5", cause)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("poll expiry keeps the last fetch error", func(t *testing.T) {
		err := ErrPollExpired("scan-1", 5, cause)
		assert.True(t, stderrors.Is(err, cause))
		assert.Contains(t, err.Error(), "5 consecutive errors")
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransportError(CodeTransport, "read timeout", "get_scan")))
	assert.True(t, IsRetryable(NewTransportError(CodeBackendUnavailable, "refused", "health")))
	assert.False(t, IsRetryable(NewTransportError(CodeNotFound, "no such scan", "get_scan")))
	assert.False(t, IsRetryable(ErrEmptyTarget()))
	assert.False(t, IsRetryable(ErrPollExpired("scan-1", 5, nil)))
}

func TestWithStatus(t *testing.T) {
	err := NewTransportError(CodeNotFound, "alert not found", "resolve_alert").
		WithStatus(404)
	require.Equal(t, 404, err.StatusCode)
	assert.True(t, IsCode(err, CodeNotFound))
}
