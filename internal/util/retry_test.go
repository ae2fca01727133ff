package util

import (
	"errors"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "timeout in error message",
			err:      errors.New("connection timeout"),
			expected: true,
		},
		{
			name:     "connection reset in message",
			err:      errors.New("connection reset by peer"),
			expected: true,
		},
		{
			name:     "broken pipe in message",
			err:      errors.New("write: broken pipe"),
			expected: true,
		},
		{
			name:     "network unreachable",
			err:      errors.New("network is unreachable"),
			expected: true,
		},
		{
			name:     "service unavailable",
			err:      errors.New("503 service unavailable"),
			expected: true,
		},
		{
			name:     "generic error (not retryable)",
			err:      errors.New("invalid argument"),
			expected: false,
		},
		{
			name:     "auth error (not retryable)",
			err:      errors.New("invalid API key"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v",
					tt.err, result, tt.expected)
			}
		})
	}
}

func testRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts: attempts,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Sleep:       func(time.Duration) {},
	}
}

func TestRetryWithBackoff_ImmediateSuccess(t *testing.T) {
	attempts := 0

	result, err := RetryWithBackoff(testRetryConfig(3), func() (int, error) {
		attempts++
		return 42, nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != 42 {
		t.Errorf("Expected result 42, got: %d", result)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetryWithBackoff_SuccessOnThirdAttempt(t *testing.T) {
	attempts := 0

	result, err := RetryWithBackoff(testRetryConfig(5), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection timeout")
		}
		return "success", nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := errors.New("connection timeout")

	result, err := RetryWithBackoff(testRetryConfig(5), func() (int, error) {
		attempts++
		return 0, transient
	}, "test operation")

	if err == nil {
		t.Error("Expected error after max retries, got nil")
	}
	if !errors.Is(err, transient) {
		t.Errorf("Expected wrapped original error, got: %v", err)
	}
	if result != 0 {
		t.Errorf("Expected result 0, got: %d", result)
	}
	if attempts != 5 {
		t.Errorf("Expected exactly 5 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	fatal := errors.New("invalid API key")

	_, err := RetryWithBackoff(testRetryConfig(5), func() (int, error) {
		attempts++
		return 0, fatal
	}, "test operation")

	if !errors.Is(err, fatal) {
		t.Errorf("Expected original error unchanged, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for non-retryable), got: %d", attempts)
	}
}

func TestRetryWithBackoff_CustomClassifier(t *testing.T) {
	attempts := 0
	cfg := testRetryConfig(3)
	cfg.Retryable = func(err error) bool { return err.Error() == "again" }

	_, err := RetryWithBackoff(cfg, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("again")
		}
		return 1, nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_BackoffDoublesAndCaps(t *testing.T) {
	var waits []time.Duration
	cfg := &RetryConfig{
		MaxAttempts: 5,
		InitialWait: 10 * time.Millisecond,
		MaxWait:     20 * time.Millisecond,
		Sleep:       func(d time.Duration) { waits = append(waits, d) },
	}

	_, _ = RetryWithBackoff(cfg, func() (int, error) {
		return 0, errors.New("connection timeout")
	}, "test operation")

	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		20 * time.Millisecond,
		20 * time.Millisecond,
	}
	if len(waits) != len(expected) {
		t.Fatalf("Expected %d waits, got %d", len(expected), len(waits))
	}
	for i, want := range expected {
		if waits[i] != want {
			t.Errorf("Wait %d: expected %v, got %v", i, want, waits[i])
		}
	}
}

func TestRetry_NoReturnValue(t *testing.T) {
	attempts := 0

	err := Retry(testRetryConfig(3), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("connection timeout")
		}
		return nil
	}, "test operation")

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got: %d", attempts)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts=5, got: %d", cfg.MaxAttempts)
	}
	if cfg.InitialWait != 1*time.Second {
		t.Errorf("Expected InitialWait=1s, got: %v", cfg.InitialWait)
	}
	if cfg.MaxWait != 16*time.Second {
		t.Errorf("Expected MaxWait=16s, got: %v", cfg.MaxWait)
	}
	if cfg.Jitter != 1*time.Second {
		t.Errorf("Expected Jitter=1s, got: %v", cfg.Jitter)
	}
}
