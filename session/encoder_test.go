package session

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	now := time.Now().Unix()
	original := &Session{
		Token:     "tok",
		Username:  "alice_99",
		CreatedAt: now,
		ExpiresAt: now + 3600,
	}

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Username != original.Username {
		t.Fatalf("username mismatch: %q != %q", decoded.Username, original.Username)
	}
	if decoded.CreatedAt != original.CreatedAt || decoded.ExpiresAt != original.ExpiresAt {
		t.Fatal("timestamp mismatch after roundtrip")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{},
		{0xFF},
		{1, 200},
		{1, 5, 'a', 'b'},
	} {
		if _, err := Decode(data); err == nil {
			t.Fatalf("expected decode error for % x", data)
		}
	}
}

func TestEncodeRejectsOversizedUsername(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}

	_, err := Encode(&Session{Username: string(long)})
	if err == nil {
		t.Fatal("expected error for username over one length byte")
	}
}
