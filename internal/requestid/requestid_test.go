package requestid

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitize(t *testing.T) {
	if got := Sanitize("abc-123_x.y"); got != "abc-123_x.y" {
		t.Errorf("valid id replaced: %q", got)
	}
	for _, bad := range []string{"", "has space", "new\nline", strings.Repeat("a", maxLen+1)} {
		got := Sanitize(bad)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("Sanitize(%q) = %q, want a fresh uuid", bad, got)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != "" {
		t.Error("empty context must yield empty id")
	}
	ctx := WithRequestID(context.Background(), "r-1")
	if FromContext(ctx) != "r-1" {
		t.Errorf("got %q", FromContext(ctx))
	}
}
