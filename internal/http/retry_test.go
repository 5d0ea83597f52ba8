package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{errors.New("status 401: token expired"), ErrorTypeCredential},
		{errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), ErrorTypeNetwork},
		{errors.New("read tcp: i/o timeout"), ErrorTypeNetwork},
		{errors.New("unexpected EOF"), ErrorTypeNetwork},
		{errors.New("status 503 service unavailable"), ErrorTypeRetryable},
		{errors.New("status 429: too many requests"), ErrorTypeRetryable},
		{errors.New("status 404: not found"), ErrorTypeFatal},
		{errors.New("something odd"), ErrorTypeFatal},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v): expected %s, got %s", tt.err, ErrorTypeName(tt.want), ErrorTypeName(got))
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{200, ErrorTypeSuccess},
		{204, ErrorTypeSuccess},
		{401, ErrorTypeCredential},
		{403, ErrorTypeCredential},
		{404, ErrorTypeFatal},
		{408, ErrorTypeRetryable},
		{429, ErrorTypeRetryable},
		{500, ErrorTypeRetryable},
		{501, ErrorTypeFatal},
		{503, ErrorTypeRetryable},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.code); got != tt.want {
			t.Errorf("ClassifyStatus(%d): expected %s, got %s", tt.code, ErrorTypeName(tt.want), ErrorTypeName(got))
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := CalculateBackoff(0, 100*time.Millisecond, time.Second); d != 0 {
		t.Errorf("attempt 0 should not wait, got %v", d)
	}

	for attempt := 1; attempt < 20; attempt++ {
		d := CalculateBackoff(attempt, 100*time.Millisecond, time.Second)
		if d < 0 || d >= time.Second {
			t.Errorf("attempt %d: backoff %v out of [0, 1s)", attempt, d)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	retry, err := RetryPolicy(ctx, nil, fmt.Errorf("Get \"http://x\": dial tcp: connection refused"))
	if !retry || err != nil {
		t.Errorf("network error: expected retry, got retry=%v err=%v", retry, err)
	}

	retry, _ = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusBadGateway}, nil)
	if !retry {
		t.Error("502: expected retry")
	}

	retry, _ = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusNotFound}, nil)
	if retry {
		t.Error("404: expected no retry")
	}

	retry, _ = RetryPolicy(ctx, &http.Response{StatusCode: http.StatusUnauthorized}, nil)
	if retry {
		t.Error("401: expected no retry")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	retry, err = RetryPolicy(cancelled, &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	if retry || !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: expected no retry with context error, got retry=%v err=%v", retry, err)
	}
}

func TestBackoff_RetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")

	if d := Backoff(100*time.Millisecond, 10*time.Second, 0, resp); d != 3*time.Second {
		t.Errorf("expected Retry-After of 3s, got %v", d)
	}
	if d := Backoff(100*time.Millisecond, time.Second, 0, resp); d != time.Second {
		t.Errorf("expected Retry-After capped at max, got %v", d)
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(200*time.Millisecond, 2*time.Second, attempt, nil)
		if d < 200*time.Millisecond || d > 2*time.Second {
			t.Errorf("attempt %d: backoff %v out of [min, max]", attempt, d)
		}
	}
}
