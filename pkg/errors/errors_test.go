package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewInvalidInputError("bad room")
	if got, want := err.Error(), "INVALID_INPUT: bad room"; got != want {
		t.Errorf("Error() = %v, want %v", got, want)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}
}

func TestAppError_WrapKeepsCause(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := NewSignalingUnavailableError(cause)

	if !stderrors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "dial tcp: refused") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want 503", err.HTTPStatus)
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeNotFound, "room").WithContext("room_id", "a_b").WithContext("attempt", 2)
	if err.Context["room_id"] != "a_b" || err.Context["attempt"] != 2 {
		t.Errorf("unexpected context: %v", err.Context)
	}
}

func TestGetAppError_ThroughWrapping(t *testing.T) {
	base := NewInferenceUnavailableError(stderrors.New("deadline"))
	wrapped := fmt.Errorf("tick: %w", base)

	got := GetAppError(wrapped)
	if got != base {
		t.Fatalf("GetAppError() = %v, want %v", got, base)
	}
	if !HasCode(wrapped, ErrCodeInferenceUnavailable) {
		t.Errorf("HasCode() = false, want true")
	}
	if HasCode(stderrors.New("plain"), ErrCodeInternal) {
		t.Errorf("HasCode() on plain error = true, want false")
	}
	if GetAppError(nil) != nil {
		t.Errorf("GetAppError(nil) should be nil")
	}
}

func TestNew_UnknownCodeDefaultsTo500(t *testing.T) {
	err := New(ErrorCode("WHATEVER"), "x")
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want 500", err.HTTPStatus)
	}
}
