package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{name: "cancelled context", err: context.Canceled, retryable: false, recordFailure: false},
		{name: "deadline", err: context.DeadlineExceeded, retryable: false, recordFailure: false},
		{name: "no servers", err: nats.ErrNoServers, retryable: true, recordFailure: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true, recordFailure: true},
		{name: "connection closed", err: nats.ErrConnectionClosed, retryable: true, recordFailure: true},
		{name: "open breaker", err: gobreaker.ErrOpenState, retryable: true, recordFailure: true},
		{name: "unknown error", err: errors.New("bad subject"), retryable: false, recordFailure: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.recordFailure {
				t.Fatalf("classifyNATSError(%v) = %+v, want retryable=%t recordFailure=%t",
					tc.err, class, tc.retryable, tc.recordFailure)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nil); err != nil {
		t.Fatalf("wrapTemporaryIfNeeded(nil) = %v", err)
	}

	transport := wrapTemporaryIfNeeded(nats.ErrNoServers)
	if !domain.IsKind(transport, domain.ErrTemporary) {
		t.Fatalf("transport error not marked temporary: %v", transport)
	}
	if !errors.Is(transport, nats.ErrNoServers) {
		t.Fatalf("wrapped error lost cause: %v", transport)
	}

	already := domain.WrapError(domain.ErrTemporary, "publish study", nats.ErrTimeout)
	if got := wrapTemporaryIfNeeded(already); got != already {
		t.Fatalf("already-temporary error rewrapped: %v", got)
	}

	permanent := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(permanent); got != permanent {
		t.Fatalf("permanent error changed: %v", got)
	}
}

func TestStudyRefPayloadRoundTrip(t *testing.T) {
	ref := domain.StudyRef{
		TaskID:     "task-42",
		PatientID:  "pat01",
		StudyID:    "study01",
		StudyDir:   "/data/studies/pat01/study01",
		ProjectID:  7,
		EnqueuedAt: time.Date(2024, 5, 14, 10, 30, 0, 0, time.UTC),
	}

	payload, err := encodeStudyRef(ref)
	if err != nil {
		t.Fatalf("encodeStudyRef() error = %v", err)
	}
	got, err := decodeStudyRef(payload)
	if err != nil {
		t.Fatalf("decodeStudyRef() error = %v", err)
	}
	if got != ref {
		t.Fatalf("decodeStudyRef() = %+v, want %+v", got, ref)
	}
}

func TestEncodeStudyRefRequiresIdentity(t *testing.T) {
	_, err := encodeStudyRef(domain.StudyRef{PatientID: "pat01"})
	if err == nil {
		t.Fatal("encodeStudyRef() accepted ref without task id and study dir")
	}
}

func TestDecodeStudyRefRejectsMalformedPayloads(t *testing.T) {
	if _, err := decodeStudyRef([]byte("not json")); err == nil {
		t.Fatal("decodeStudyRef() accepted malformed payload")
	}
	if _, err := decodeStudyRef([]byte(`{"patient_id":"pat01"}`)); err == nil {
		t.Fatal("decodeStudyRef() accepted payload without task id and study dir")
	}
}
