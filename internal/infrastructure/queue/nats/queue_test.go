package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

func TestMapUploadedEventRoundTrip(t *testing.T) {
	payload, err := encodeMapUploaded(" map-1 ", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("encodeMapUploaded() error = %v", err)
	}
	got, err := decodeMapUploaded(payload)
	if err != nil {
		t.Fatalf("decodeMapUploaded() error = %v", err)
	}
	if got.MapID != "map-1" || !got.PublishedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestDecodeMapUploadedAcceptsBareID(t *testing.T) {
	got, err := decodeMapUploaded([]byte("map-7\n"))
	if err != nil || got.MapID != "map-7" || !got.PublishedAt.IsZero() {
		t.Fatalf("expected bare id map-7, got %+v err=%v", got, err)
	}
}

func TestDecodeMapUploadedRejectsEmptyPayloads(t *testing.T) {
	for _, payload := range []string{"", "  ", `{"mapId":""}`, `{"mapId":`} {
		if _, err := decodeMapUploaded([]byte(payload)); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
	if _, err := encodeMapUploaded(" ", time.Now()); err == nil {
		t.Fatalf("expected error for empty map id")
	}
}

func TestPublishedAtFromContext(t *testing.T) {
	if _, ok := PublishedAt(context.Background()); ok {
		t.Fatalf("expected no publish time on a bare context")
	}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got, ok := PublishedAt(context.WithValue(context.Background(), publishedAtKey{}, at))
	if !ok || !got.Equal(at) {
		t.Fatalf("expected %v, got %v ok=%v", at, got, ok)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"no servers", fmt.Errorf("nats publish: %w", nats.ErrNoServers), true, true},
		{"timeout", nats.ErrTimeout, true, true},
		{"canceled", context.Canceled, false, false},
		{"circuit open", gobreaker.ErrOpenState, true, true},
		{"bad subject", nats.ErrBadSubject, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("unexpected classification %+v", class)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to be temporary, got %v", err)
	}
	permanent := errors.New("permission violation")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error untouched, got %v", err)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("expected nil for nil")
	}
}
