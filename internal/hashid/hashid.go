// Package hashid converts Jellyfin item GUIDs to the short identifiers users
// type on the command line and back.
//
// An identifier is the 16 GUID bytes written as a fixed-width, 22 character
// base58 number. Leading zero digits are kept so every GUID maps to exactly one
// identifier and every identifier decodes to exactly one GUID.
package hashid

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"jellysync/internal/services"
)

const (
	alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	// Width is the length of every encoded identifier.
	Width = 22
)

var (
	radix     = big.NewInt(int64(len(alphabet)))
	digitOf   [256]int8
	maxBitLen = 128
)

func init() {
	for i := range digitOf {
		digitOf[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		digitOf[alphabet[i]] = int8(i)
	}
}

// Encode turns a Jellyfin item id (32 hex digits, dashes optional) into its
// hash identifier.
func Encode(id string) (string, error) {
	raw, err := parseGUID(id)
	if err != nil {
		return "", err
	}
	n := new(big.Int).SetBytes(raw[:])
	out := make([]byte, Width)
	mod := new(big.Int)
	for i := Width - 1; i >= 0; i-- {
		n.DivMod(n, radix, mod)
		out[i] = alphabet[mod.Int64()]
	}
	return string(out), nil
}

// MustEncode is Encode for ids already known to be valid GUIDs.
func MustEncode(id string) string {
	hash, err := Encode(id)
	if err != nil {
		panic(err)
	}
	return hash
}

// Decode reverses Encode and returns the canonical 32 character lowercase
// item id.
func Decode(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if len(hash) != Width {
		return "", invalid("decode", "identifier must be 22 characters", hash)
	}
	n := new(big.Int)
	for i := 0; i < len(hash); i++ {
		d := digitOf[hash[i]]
		if d < 0 {
			return "", invalid("decode", "identifier contains character "+string(hash[i])+" outside the base58 alphabet", hash)
		}
		n.Mul(n, radix)
		n.Add(n, big.NewInt(int64(d)))
	}
	if n.BitLen() > maxBitLen {
		return "", invalid("decode", "identifier overflows 128 bits", hash)
	}
	var raw [16]byte
	n.FillBytes(raw[:])
	return hex.EncodeToString(raw[:]), nil
}

// Canonical normalizes a raw Jellyfin GUID to 32 lowercase hex digits.
func Canonical(id string) (string, error) {
	raw, err := parseGUID(id)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// IsRawGUID reports whether s is a Jellyfin GUID in either the compact or the
// dashed form.
func IsRawGUID(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 32 && len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// LooksLikeIdentifier reports whether input is shaped like something the
// user meant as an identifier rather than a search query: a single
// alphanumeric token of identifier width, or a raw GUID. Shaped inputs must be
// decoded strictly so a typo surfaces as an error instead of a search.
func LooksLikeIdentifier(input string) bool {
	input = strings.TrimSpace(input)
	if IsRawGUID(input) {
		return true
	}
	if len(input) != Width {
		return false
	}
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

func parseGUID(id string) (uuid.UUID, error) {
	id = strings.TrimSpace(id)
	if len(id) != 32 && len(id) != 36 {
		return uuid.UUID{}, invalid("parse", "item id must be 32 hex digits", id)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, services.Wrap(services.ErrInvalidIdentifier, "hashid", "parse", "item id "+quote(id), err)
	}
	return u, nil
}

func invalid(op, message, input string) error {
	return services.Wrap(services.ErrInvalidIdentifier, "hashid", op, message+" ("+quote(input)+")", nil)
}

func quote(s string) string {
	if len(s) > 48 {
		s = s[:48] + "..."
	}
	return "\"" + s + "\""
}
