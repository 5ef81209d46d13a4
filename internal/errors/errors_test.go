package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestScanError(t *testing.T) {
	t.Run("error with target", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeTargetInvalid, "bad origin", "http://example.com")
		expected := "[TARGET_INVALID] bad origin (target: http://example.com)"
		if err.Error() != expected {
			t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
		}
		if err.Context == nil {
			t.Error("Context should be initialized")
		}
	})

	t.Run("wrapped error with target", func(t *testing.T) {
		cause := fmt.Errorf("connection refused")
		err := WrapScanErrorWithTarget(CodeNetwork, "cannot connect", "http://example.com", cause)
		if err.Unwrap() != cause {
			t.Error("Should unwrap to original error")
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
	})

	t.Run("with context", func(t *testing.T) {
		err := NewScanErrorWithTarget(CodeTimeout, "timeout occurred", "")
		err.WithContext("path", "admin").WithContext("attempt", 1)

		if err.Context["path"] != "admin" {
			t.Errorf("Expected path 'admin', got %v", err.Context["path"])
		}
		if err.Context["attempt"] != 1 {
			t.Errorf("Expected attempt 1, got %v", err.Context["attempt"])
		}
	})
}

func TestDictionaryError(t *testing.T) {
	t.Run("not found is fatal", func(t *testing.T) {
		err := WrapDictionaryError(CodeFileNotFound, "Dictionary not found", "/tmp/DIR.txt", fs.ErrNotExist)
		if !err.IsFatal() {
			t.Error("missing dictionary should be fatal")
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Error("should unwrap to fs.ErrNotExist")
		}
		expected := "[FILE_NOT_FOUND] Dictionary not found (path: /tmp/DIR.txt): file does not exist"
		if err.Error() != expected {
			t.Errorf("Expected '%s', got '%s'", expected, err.Error())
		}
	})

	t.Run("empty is not fatal", func(t *testing.T) {
		err := ErrDictionaryEmpty("/tmp/DIR.txt", "utf-8")
		if err.IsFatal() {
			t.Error("empty dictionary should not be fatal")
		}
		if err.Encoding != "utf-8" {
			t.Errorf("Expected encoding utf-8, got %s", err.Encoding)
		}
	})

	t.Run("decode failure", func(t *testing.T) {
		err := ErrDictionaryDecode("words.txt")
		if err.Code != CodeDictionaryDecode {
			t.Errorf("Expected code %s, got %s", CodeDictionaryDecode, err.Code)
		}
	})
}

func TestConfigError(t *testing.T) {
	err := ErrConfigInvalid("scanner.threads", 0)
	expected := "[VALIDATION] Invalid configuration value (field: scanner.threads)"
	if err.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, err.Error())
	}

	cause := fmt.Errorf("yaml: line 3")
	wrapped := WrapConfigError(CodeConfiguration, "parse failed", cause)
	if wrapped.Unwrap() != cause {
		t.Error("Should unwrap to original error")
	}
}

func TestLifecycleError(t *testing.T) {
	err := ErrAlreadyRunning("scanner manager")
	if err.Error() != "[ALREADY_RUNNING] scanner manager is already running" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	wrapped := fmt.Errorf("start: %w", err)
	if !errors.Is(wrapped, ErrAlreadyRunning("anything")) {
		t.Error("errors.Is should match lifecycle errors by code")
	}
	if errors.Is(wrapped, ErrNotRunning("anything")) {
		t.Error("different codes must not match")
	}
	if ErrNotRunning("x").Error() != "[NOT_RUNNING] x is not running" {
		t.Errorf("unexpected message: %s", ErrNotRunning("x").Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"scan error", NewScanErrorWithTarget(CodeNetwork, "x", "t"), CodeNetwork},
		{"wrapped dictionary error", fmt.Errorf("load: %w", ErrDictionaryEmpty("p", "utf-8")), CodeDictionaryEmpty},
		{"config error", ErrConfigInvalid("f", 1), CodeValidation},
		{"lifecycle error", ErrNotRunning("m"), CodeNotRunning},
		{"plain error", fmt.Errorf("plain"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %s, want %s", got, tt.want)
			}
			if tt.want != CodeUnknown && !IsCode(tt.err, tt.want) {
				t.Errorf("IsCode(%v, %s) = false", tt.err, tt.want)
			}
		})
	}
}

func TestIsRetryableAndFatal(t *testing.T) {
	if !IsRetryable(NewScanErrorWithTarget(CodeTimeout, "t", "")) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(ErrDictionaryEmpty("p", "")) {
		t.Error("empty dictionary should not be retryable")
	}
	if !IsFatal(WrapDictionaryError(CodeFileNotFound, "m", "p", nil)) {
		t.Error("missing file should be fatal")
	}
	if IsFatal(NewScanErrorWithTarget(CodeNetwork, "n", "")) {
		t.Error("network error should not be fatal")
	}
}
