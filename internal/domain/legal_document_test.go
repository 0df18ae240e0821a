package domain

import (
	"testing"
	"time"
)

func TestLegalDocument_ShouldBeRequested(t *testing.T) {
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	tests := []struct {
		name      string
		status    RequestStatus
		updatedAt time.Time
		want      bool
	}{
		{name: "error is always retried", status: RequestStatusError, updatedAt: now, want: true},
		{name: "fresh not requested waits", status: RequestStatusNotRequested, updatedAt: now.Add(-time.Hour), want: false},
		{name: "stale not requested is retried", status: RequestStatusNotRequested, updatedAt: now.Add(-window), want: true},
		{name: "requested is never retried", status: RequestStatusRequested, updatedAt: now.Add(-365 * 24 * time.Hour), want: false},
		{name: "received is never retried", status: RequestStatusReceived, updatedAt: now.Add(-365 * 24 * time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := LegalDocument{RequestStatus: tt.status, UpdatedAt: tt.updatedAt}
			if got := doc.ShouldBeRequested(now, window); got != tt.want {
				t.Fatalf("ShouldBeRequested() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestStatus_Valid(t *testing.T) {
	if !RequestStatusReceived.Valid() {
		t.Fatal("expected RECEIVED to be valid")
	}
	if RequestStatus("SIGNED").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}
