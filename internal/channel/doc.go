// Package channel defines how beamcore talks to the control system.
//
// Every device reaches hardware through two calls on named process
// variables, Read and Write, plus a Clock for timestamps. Two backends are
// provided: Memory, an in-process simulated beamline, and MQTT, which relays
// reads and writes through a broker bridged to the IOCs.
//
// Readback channels follow the "<setpoint>.RBV" naming convention.
package channel
