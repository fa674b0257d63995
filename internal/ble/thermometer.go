package ble

import (
	"encoding/hex"
	"fmt"
)

// thermometerPreamble is the ATC advertisement's environmental-sensing
// service prefix: 16-bit UUID 0x181a announced as a 16-bit service-data AD
// structure (type 0x16, little-endian UUID bytes 0x1a 0x18).
var thermometerPreamble = []byte{0x16, 0x1a, 0x18}

// Thermometer is the decoded reading from an ATC-firmware BLE thermometer
// advertisement.
type Thermometer struct {
	TemperatureCelsius float64
	HumidityPercent    float64
	BatteryPercent     float64
}

// DecodeThermometer decrypts and decodes an ATC thermometer advertisement.
//
// advHex is the raw advertisement payload as hex, containing the AD
// structures as broadcast (length-prefixed TLVs); keyHex is the sensor's
// 16-byte AES key as hex; mac is the sensor's MAC address, colon-form or not.
func DecodeThermometer(mac, advHex, keyHex string) (Thermometer, error) {
	macBytes, err := parseMAC(mac)
	if err != nil {
		return Thermometer{}, err
	}
	key, err := decodeHexKey(keyHex)
	if err != nil {
		return Thermometer{}, err
	}
	adv, err := hex.DecodeString(advHex)
	if err != nil {
		return Thermometer{}, fmt.Errorf("%w: adv hex: %v", ErrMalformed, err)
	}

	idx := indexOf(adv, thermometerPreamble)
	if idx < 0 || idx-1 < 0 {
		return Thermometer{}, fmt.Errorf("%w: thermometer preamble not found", ErrMalformed)
	}
	length := adv[idx-1]
	packet := append([]byte{length}, adv[idx:]...)

	if len(packet) < 5+3+4 {
		return Thermometer{}, fmt.Errorf("%w: packet too short for nonce+tag", ErrMalformed)
	}

	nonce := append(reversed(macBytes), packet[:5]...)
	ciphertext := packet[5:]

	plaintext, err := openCCM(key, nonce, ciphertext, 4)
	if err != nil {
		return Thermometer{}, err
	}

	return decodeThermometerPlaintext(plaintext)
}

// decodeThermometerPlaintext interprets the decrypted ATC payload. Kept
// separate from the decrypt step so the two plaintext shapes are testable
// without needing real ciphertext fixtures.
func decodeThermometerPlaintext(plaintext []byte) (Thermometer, error) {
	switch len(plaintext) {
	case 3:
		return Thermometer{
			TemperatureCelsius: float64(plaintext[0])/2 - 40,
			HumidityPercent:    float64(plaintext[1]) / 2,
			BatteryPercent:     float64(plaintext[2] & 0x7F),
		}, nil
	case 6:
		return Thermometer{
			TemperatureCelsius: float64(int16(uint16(plaintext[0])|uint16(plaintext[1])<<8)) / 100,
			HumidityPercent:    float64(uint16(plaintext[2])|uint16(plaintext[3])<<8) / 100,
			BatteryPercent:     float64(plaintext[4]),
		}, nil
	default:
		return Thermometer{}, fmt.Errorf("%w: unexpected plaintext length %d", ErrMalformed, len(plaintext))
	}
}

// indexOf returns the index of the first occurrence of sub in b, or -1.
func indexOf(b, sub []byte) int {
	if len(sub) == 0 || len(sub) > len(b) {
		return -1
	}
	for i := 0; i+len(sub) <= len(b); i++ {
		match := true
		for j := range sub {
			if b[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
