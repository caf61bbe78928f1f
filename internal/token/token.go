// PulseKit - Self-Hosted Web Analytics and Error Monitoring
// Copyright 2026 PulseKit contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pulsekit/pulsekit

// Package token implements PulseKit's stateless bearer credential: an
// HMAC-SHA256 signed token of the form "{expiry_hex}.{signature_hex}",
// where expiry is milliseconds since the Unix epoch. The expiry lives
// inside the signed payload, so a token is verifiable without any
// server-side session state and expires on its own.
//
// Hex encoding is used for both halves to avoid base64 padding and
// charset issues in cookie and header values.
//
// Verification never panics: malformed input of any shape collapses to
// a plain false, since every byte of the token is attacker-controlled.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// timingKey is a fixed key used only by TimingSafeEqual. Its value is
// not a secret; it only needs to be constant so both inputs are mapped
// through the same PRF before comparison.
const timingKey = "pulse-timing-safe"

// Create returns a signed token that expires ttl from now.
// The secret must match the one later passed to Verify.
func Create(secret string, ttl time.Duration) string {
	expiry := strconv.FormatInt(time.Now().Add(ttl).UnixMilli(), 16)
	return expiry + "." + hex.EncodeToString(sign(secret, expiry))
}

// Verify reports whether tok is a well-formed token signed under secret
// whose expiry is still in the future. It returns false for any
// malformed, tampered, or expired input and never panics.
func Verify(secret, tok string) bool {
	dot := strings.IndexByte(tok, '.')
	if dot < 0 {
		return false
	}

	expiry := tok[:dot]
	expiryMs, err := strconv.ParseInt(expiry, 16, 64)
	if err != nil || expiryMs <= time.Now().UnixMilli() {
		return false
	}

	sig, err := hex.DecodeString(tok[dot+1:])
	if err != nil {
		return false
	}

	// hmac.Equal is constant time, so a forged signature cannot be
	// refined byte by byte through response timing.
	return hmac.Equal(sign(secret, expiry), sig)
}

// TimingSafeEqual reports whether a == b without leaking timing
// information proportional to the position of the first mismatch.
// Both inputs are signed under a fixed key and the MACs are compared
// in constant time; the inputs themselves are never compared directly,
// so even their lengths are not observable through timing.
func TimingSafeEqual(a, b string) bool {
	return hmac.Equal(sign(timingKey, a), sign(timingKey, b))
}

func sign(key, payload string) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
