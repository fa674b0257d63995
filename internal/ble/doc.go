// Package ble decodes the BLE sensor advertisement formats the bridge
// observes as beacons forwarded by gen-2 actuators: the ATC thermometer
// encoding and the Xiaomi contact-sensor frame encoding, both AES-128-CCM
// encrypted, plus the bare digit a radiator valve reports its own state
// with. The bridge never scans for BLE devices itself — advertisements
// always arrive pre-captured inside actuator telemetry (contact frames as
// hex, thermometer payloads as base64 that the reconciler converts to hex).
package ble
