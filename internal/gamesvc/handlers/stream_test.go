package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSE(rec, "job", []byte(`{"status":"RUNNING"}`))

	got := rec.Body.String()
	want := "event: job\ndata: {\"status\":\"RUNNING\"}\n\n"
	if got != want {
		t.Fatalf("frame mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestSSEFramesConcatenate(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSSE(rec, "hello", []byte(`{"game_id":"g1"}`))
	writeSSE(rec, "event", []byte(`{"type":"CAPTURE_CREATED"}`))

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %q", len(frames), rec.Body.String())
	}
	if !strings.HasPrefix(frames[0], "event: hello\n") {
		t.Fatalf("first frame must be the hello frame: %q", frames[0])
	}
	if !strings.Contains(frames[1], "data: {\"type\":\"CAPTURE_CREATED\"}") {
		t.Fatalf("second frame lost its payload: %q", frames[1])
	}
}
