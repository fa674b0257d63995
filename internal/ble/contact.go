package ble

import (
	"encoding/hex"
	"fmt"
)

// contactPreamble is the Xiaomi service-data AD structure prefix: type 0x16,
// little-endian UUID bytes for the Xiaomi Inc 16-bit UUID 0xfe95.
var contactPreamble = []byte{0x16, 0x95, 0xfe}

// ContactState is the decoded state of a BLE window/door contact sensor.
type ContactState int

const (
	ContactUnknown ContactState = iota
	ContactOpen
	ContactClose
)

func (s ContactState) String() string {
	switch s {
	case ContactOpen:
		return "open"
	case ContactClose:
		return "close"
	default:
		return "unknown"
	}
}

// DecodeContact decrypts and decodes a Xiaomi contact-sensor beacon frame.
//
// frameHex is the whole hex frame as constructed by the reconciler for BLE
// proxy notifications: one length byte, the advertisement AD structures,
// and a trailing signed RSSI byte.
func DecodeContact(mac, frameHex, keyHex string) (ContactState, error) {
	macBytes, err := parseMAC(mac)
	if err != nil {
		return ContactUnknown, err
	}
	key, err := decodeHexKey(keyHex)
	if err != nil {
		return ContactUnknown, err
	}
	frame, err := hex.DecodeString(frameHex)
	if err != nil {
		return ContactUnknown, fmt.Errorf("%w: frame hex: %v", ErrMalformed, err)
	}

	start := indexOf(frame, contactPreamble)
	if start < 0 {
		return ContactUnknown, fmt.Errorf("%w: contact preamble not found", ErrMalformed)
	}
	end := len(frame) - 1 // exclude trailing RSSI byte
	if start+14 > end || end > len(frame) {
		return ContactUnknown, fmt.Errorf("%w: frame too short for contact payload", ErrMalformed)
	}

	deviceType := frame[start+5 : start+7]
	appNonce := frame[start+7 : start+8]
	payload := frame[start+14 : end]

	if len(payload) < 7 {
		return ContactUnknown, fmt.Errorf("%w: encrypted payload too short", ErrMalformed)
	}

	tag := payload[len(payload)-4:]
	counter := payload[len(payload)-7 : len(payload)-4]
	ciphertext := payload[:len(payload)-7]

	nonce := make([]byte, 0, 6+2+1+3)
	nonce = append(nonce, reversed(macBytes)...)
	nonce = append(nonce, deviceType...)
	nonce = append(nonce, appNonce...)
	nonce = append(nonce, counter...)

	sealed := append(append([]byte{}, ciphertext...), tag...)

	plaintext, err := openCCM(key, nonce, sealed, 4)
	if err != nil {
		return ContactUnknown, err
	}
	if len(plaintext) == 0 {
		return ContactUnknown, fmt.Errorf("%w: empty contact plaintext", ErrMalformed)
	}

	lastNibble := plaintext[len(plaintext)-1] & 0x0F
	if lastNibble == 0x0 {
		return ContactOpen, nil
	}
	return ContactClose, nil
}
