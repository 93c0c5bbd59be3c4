package execx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFake_RecordsArgumentVectors(t *testing.T) {
	f := NewFake().Output("lp", "request id is X-1")

	out, err := f.Run(context.Background(), "lp", "-d", "Kitchen; rm -rf /", "/tmp/job.txt")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(out) != "request id is X-1" {
		t.Errorf("Unexpected output %q", out)
	}

	calls := f.CallsTo("lp")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	if calls[0].Args[1] != "Kitchen; rm -rf /" {
		t.Errorf("Expected printer name passed verbatim, got %q", calls[0].Args[1])
	}
}

func TestFake_UnknownCommandFails(t *testing.T) {
	if _, err := NewFake().Run(context.Background(), "lpstat"); err == nil {
		t.Error("Expected error for unregistered command")
	}
}

func TestWithTimeout_ReportsTimeout(t *testing.T) {
	f := NewFake().Handle("lp", func([]string) ([]byte, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, context.DeadlineExceeded
	})

	_, err := WithTimeout(context.Background(), f, 10*time.Millisecond, "lp")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}
