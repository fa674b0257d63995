package ble

import (
	"crypto/aes"
	"encoding/hex"
	"fmt"
	"strings"

	aesccm "github.com/pschlump/AesCCM"
)

// aad is the associated-data byte both beacon formats authenticate over.
var aad = []byte{0x11}

// parseMAC decodes a MAC address given either with or without colon
// separators, case-insensitively, into its 6 raw bytes.
func parseMAC(mac string) ([]byte, error) {
	clean := strings.ReplaceAll(mac, ":", "")
	if len(clean) != 12 {
		return nil, fmt.Errorf("%w: mac %q is not 12 hex chars", ErrMalformed, mac)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: mac %q: %v", ErrMalformed, mac, err)
	}
	return b, nil
}

// reversed returns a new slice with b's bytes in reverse order, the nonce
// construction both beacon formats use for the MAC component.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// openCCM decrypts ciphertext with AES-128-CCM under key, nonce, tagLen and
// the shared associated-data byte. It returns ErrDecryptFailed on tag
// mismatch, and ErrMalformed only when the cipher cannot be set up from key,
// tagLen and the nonce length.
func openCCM(key, nonce, ciphertext []byte, tagLen int) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes key: %v", ErrMalformed, err)
	}
	ccm, err := aesccm.NewCCM(block, tagLen, len(nonce))
	if err != nil {
		return nil, fmt.Errorf("%w: ccm init: %v", ErrMalformed, err)
	}
	plaintext, err := ccm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

// decodeHexKey decodes a 32-char hex key string into its 16 raw bytes.
func decodeHexKey(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 16 {
		return nil, fmt.Errorf("%w: key must be 16 bytes of hex: %v", ErrMalformed, err)
	}
	return key, nil
}
