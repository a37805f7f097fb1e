package store_test

import (
	"testing"
	"time"

	"github.com/xraph/gatehouse/store"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := store.EncodeCursor(at, "mbr_01h2xcejqtf2nbrexx3vqjhp41")

	c, err := store.DecodeCursor(token)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !c.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", c.CreatedAt, at)
	}
	if c.ID != "mbr_01h2xcejqtf2nbrexx3vqjhp41" {
		t.Errorf("id = %q", c.ID)
	}
}

func TestCursorEmptyToken(t *testing.T) {
	c, err := store.DecodeCursor("")
	if err != nil {
		t.Fatalf("empty token should not error: %v", err)
	}
	if c != nil {
		t.Error("empty token should decode to nil cursor")
	}
}

func TestCursorGarbageToken(t *testing.T) {
	for _, token := range []string{"!!!", "bm90LWpzb24", "aGVsbG8"} {
		if _, err := store.DecodeCursor(token); err == nil {
			t.Errorf("token %q should not decode", token)
		}
	}
}
