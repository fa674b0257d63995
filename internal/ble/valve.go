package ble

import "fmt"

// DecodeValveDigit parses the single-character ASCII payload a radiator
// valve's BLE beacon carries when it is reporting its own open/closed state
// (as opposed to acting purely as a proxy-liveness signal).
//
// "1" reports the valve open (true); "0" reports it closed (false).
func DecodeValveDigit(payload string) (bool, error) {
	switch payload {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: valve payload %q is not 0 or 1", ErrMalformed, payload)
	}
}
