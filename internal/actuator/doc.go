// See wire.go for the package overview; gen1 and gen2 subpackages implement
// the two hardware-generation-specific session transports.
package actuator
