// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

package token

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestCreateVerify_RoundTrip(t *testing.T) {
	secrets := []string{
		testSecret,
		"another-secret-that-is-long-enough",
		"s", // Verify does not enforce secret strength; callers do
	}

	for _, secret := range secrets {
		tok := Create(secret, time.Hour)
		if !Verify(secret, tok) {
			t.Errorf("Verify(%q, Create(...)) = false, want true", secret)
		}
	}
}

func TestCreate_Format(t *testing.T) {
	tok := Create(testSecret, time.Hour)

	parts := strings.SplitN(tok, ".", 2)
	if len(parts) != 2 {
		t.Fatalf("token %q does not have two dot-separated parts", tok)
	}
	for i, part := range parts {
		if part == "" {
			t.Errorf("token part %d is empty", i)
		}
		if strings.Trim(part, "0123456789abcdef") != "" {
			t.Errorf("token part %d contains non-hex characters: %q", i, part)
		}
	}

	// HMAC-SHA256 is 32 bytes, 64 hex characters.
	if len(parts[1]) != 64 {
		t.Errorf("signature length = %d hex chars, want 64", len(parts[1]))
	}
}

func TestVerify_Expired(t *testing.T) {
	// A negative TTL produces a token that is already expired.
	tok := Create(testSecret, -time.Millisecond)
	if Verify(testSecret, tok) {
		t.Error("Verify accepted an expired token")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok := Create(testSecret, time.Hour)
	if Verify("a-completely-different-secret!!", tok) {
		t.Error("Verify accepted a token signed under a different secret")
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	tok := Create(testSecret, time.Hour)
	dot := strings.IndexByte(tok, '.')

	// Flip every character of the signature half, one at a time.
	for i := dot + 1; i < len(tok); i++ {
		flipped := flipHexChar(tok[i])
		tampered := tok[:i] + string(flipped) + tok[i+1:]
		if Verify(testSecret, tampered) {
			t.Errorf("Verify accepted token with signature byte %d flipped", i-dot-1)
		}
	}
}

func TestVerify_TamperedExpiry(t *testing.T) {
	tok := Create(testSecret, time.Hour)
	dot := strings.IndexByte(tok, '.')

	for i := 0; i < dot; i++ {
		flipped := flipHexChar(tok[i])
		tampered := tok[:i] + string(flipped) + tok[i+1:]
		if Verify(testSecret, tampered) {
			t.Errorf("Verify accepted token with expiry byte %d flipped", i)
		}
	}
}

func TestVerify_MalformedInput(t *testing.T) {
	tests := []struct {
		name string
		tok  string
	}{
		{"empty string", ""},
		{"no dot", "deadbeef"},
		{"only dot", "."},
		{"non-hex expiry", "zzzz.deadbeef"},
		{"non-hex signature", "1f." + strings.Repeat("x", 64)},
		{"odd-length signature", "1ffffffffffff.abc"},
		{"empty expiry", ".deadbeef"},
		{"empty signature", "1ffffffffffff."},
		{"many dots", "a.b.c.d"},
		{"negative expiry", "-1f.deadbeef"},
		{"huge expiry overflow", strings.Repeat("f", 32) + ".deadbeef"},
		{"binary garbage", "\x00\x01\x02.\xff\xfe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic and must not verify.
			if Verify(testSecret, tt.tok) {
				t.Errorf("Verify(%q) = true, want false", tt.tok)
			}
		})
	}
}

func TestTimingSafeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal strings", "hunter22hunter22", "hunter22hunter22", true},
		{"both empty", "", "", true},
		{"different strings", "hunter22hunter22", "hunter22hunter23", false},
		{"different lengths", "short", "a-much-longer-string", false},
		{"empty vs non-empty", "", "x", false},
		{"unicode", "pässwörd-pässwörd", "pässwörd-pässwörd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimingSafeEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("TimingSafeEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// flipHexChar returns a different valid hex digit so tampering keeps the
// token well-formed and only the value changes.
func flipHexChar(c byte) byte {
	if c == '0' {
		return '1'
	}
	return '0'
}
