package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

const signaturePrefix = "sha256="

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("signature does not match body")
)

// SignBody returns the X-Hub-Signature-256 value GitHub sends for body.
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC of the raw body. An empty
// header fails before any digest is computed.
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}

	expected := []byte(SignBody(secret, body))
	received := []byte(header)
	if len(received) != len(expected) {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare(expected, received) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
