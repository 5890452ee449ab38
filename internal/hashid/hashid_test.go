package hashid_test

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"jellysync/internal/hashid"
	"jellysync/internal/services"
)

func TestRoundTrip(t *testing.T) {
	ids := []string{
		"00000000000000000000000000000000",
		"ffffffffffffffffffffffffffffffff",
		"0123456789abcdef0123456789abcdef",
		"a1b2c3d4e5f60718293a4b5c6d7e8f90",
	}
	for i := 0; i < 200; i++ {
		var raw [16]byte
		if _, err := rand.Read(raw[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		ids = append(ids, hex.EncodeToString(raw[:]))
	}
	for _, id := range ids {
		hash, err := hashid.Encode(id)
		if err != nil {
			t.Fatalf("Encode(%s): %v", id, err)
		}
		if len(hash) != hashid.Width {
			t.Fatalf("Encode(%s) = %q, want width %d", id, hash, hashid.Width)
		}
		got, err := hashid.Decode(hash)
		if err != nil {
			t.Fatalf("Decode(%s): %v", hash, err)
		}
		if got != id {
			t.Fatalf("round trip mismatch: %s -> %s -> %s", id, hash, got)
		}
	}
}

func TestEncodeAcceptsDashedAndUppercase(t *testing.T) {
	compact := hashid.MustEncode("0123456789abcdef0123456789abcdef")
	dashed, err := hashid.Encode("01234567-89AB-CDEF-0123-456789ABCDEF")
	if err != nil {
		t.Fatalf("Encode dashed: %v", err)
	}
	if compact != dashed {
		t.Fatalf("expected identical identifiers, got %s and %s", compact, dashed)
	}
}

func TestZeroEncodesToLeadingOnes(t *testing.T) {
	hash := hashid.MustEncode("00000000000000000000000000000000")
	if hash != strings.Repeat("1", hashid.Width) {
		t.Fatalf("unexpected zero encoding %q", hash)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	max := hashid.MustEncode("ffffffffffffffffffffffffffffffff")
	cases := map[string]string{
		"short":        "abc",
		"long":         max + "1",
		"zero digit":   "0" + max[1:],
		"capital O":    "O" + max[1:],
		"lowercase l":  "l" + max[1:],
		"punctuation":  "-" + max[1:],
		"overflow":     strings.Repeat("z", hashid.Width),
		"empty string": "",
	}
	for name, input := range cases {
		_, err := hashid.Decode(input)
		if err == nil {
			t.Fatalf("%s: expected error for %q", name, input)
		}
		if !errors.Is(err, services.ErrInvalidIdentifier) {
			t.Fatalf("%s: expected invalid identifier marker, got %v", name, err)
		}
	}
}

func TestEncodeRejectsNonGUID(t *testing.T) {
	for _, input := range []string{"", "1234", "zz23456789abcdef0123456789abcdef", "{0123456789abcdef0123456789abcdef}"} {
		if _, err := hashid.Encode(input); !errors.Is(err, services.ErrInvalidIdentifier) {
			t.Fatalf("Encode(%q) expected invalid identifier, got %v", input, err)
		}
	}
}

func TestLooksLikeIdentifier(t *testing.T) {
	hash := hashid.MustEncode("0123456789abcdef0123456789abcdef")
	tests := []struct {
		input string
		want  bool
	}{
		{hash, true},
		{"  " + hash + " ", true},
		{"0123456789abcdef0123456789abcdef", true},
		{"01234567-89ab-cdef-0123-456789abcdef", true},
		{"O" + hash[1:], true},
		{"heist movie", false},
		{"Interstellar", false},
		{hash[:21] + " ", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := hashid.LooksLikeIdentifier(tc.input); got != tc.want {
			t.Fatalf("LooksLikeIdentifier(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	got, err := hashid.Canonical("01234567-89AB-CDEF-0123-456789ABCDEF")
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if got != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected canonical id %q", got)
	}
}
