package ble

import "errors"

// Sentinel errors returned by the decode paths in this package. Callers
// classify failures with errors.Is against these rather than inspecting
// error strings (SPEC_FULL.md §7).
var (
	// ErrMalformed marks a frame whose header bytes, length, or decrypted
	// payload shape do not match what the codec expects.
	ErrMalformed = errors.New("ble: malformed payload")

	// ErrDecryptFailed marks an AES-128-CCM authentication tag mismatch.
	ErrDecryptFailed = errors.New("ble: decrypt failed")
)
