package domain

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if len(id) != 22 {
			t.Fatalf("expected 22-char ID, got %q (%d chars)", id, len(id))
		}
		if strings.ContainsAny(id, "+/=") {
			t.Fatalf("expected URL-safe ID, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
