package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeUnknown},
		{"transient wrapper", NewTransientError("lock held", nil), ErrorTypeTransient},
		{"permanent wrapper", NewPermanentError("bad payload", nil), ErrorTypePermanent},
		{"business wrapper", NewBusinessError("duplicate", nil), ErrorTypeBusiness},
		{"wrapped transient", fmt.Errorf("processor: %w", NewTransientError("store", nil)), ErrorTypeTransient},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"network text", errors.New("dial tcp: Connection Refused"), ErrorTypeTransient},
		{"unknown", errors.New("something odd"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	transient := NewTransientError("lock held", nil)

	if !ShouldRetry(transient, 0, 3) {
		t.Errorf("transient error under the limit should be retried")
	}
	if ShouldRetry(transient, 3, 3) {
		t.Errorf("retries at the limit should stop")
	}
	if ShouldRetry(NewPermanentError("bad", nil), 0, 3) {
		t.Errorf("permanent errors should not be retried")
	}
}

func TestKafkaError_Unwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := NewBusinessError("already decided", cause).WithDetail("reference_code", "ref-1")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the cause")
	}
	if err.Details["reference_code"] != "ref-1" {
		t.Errorf("detail not kept: %v", err.Details)
	}
	if err.Error() != "already decided: duplicate key" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
