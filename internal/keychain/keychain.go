// Package keychain provides serialized, access-controlled secret storage on
// top of a platform secret store.
//
// Secrets are stored as generic passwords with:
//   - Account: the configured prefix followed by the secret key
//   - Access control: the AccessPolicy given at write time (by default user
//     presence, passcode set, this device only)
//   - Access group and synchronizable attributes when configured
//
// Every Store operation runs under a Gate, so a write is always a
// delete followed by an add with nothing interleaved, and reads never
// observe a half-finished write from the same Store.
package keychain

import "time"

// ServiceName is the default service attribute for keyguard secrets.
const ServiceName = "com.keyguard"

// Operation names passed to an Observer.
const (
	OpSet    = "set"
	OpFetch  = "fetch"
	OpDelete = "delete"
	OpScope  = "scope"
)

// Request names passed to an Observer for each backend call.
const (
	RequestAdd    = "add"
	RequestQuery  = "query"
	RequestDelete = "delete"
)

// Observer receives timing and outcome events from a Store.
type Observer interface {
	// ObserveWait reports how long op waited to enter the gate.
	ObserveWait(op string, d time.Duration)
	// ObserveHold reports how long op held the gate.
	ObserveHold(op string, d time.Duration)
	// ObserveRequest reports the status of one backend request.
	ObserveRequest(request string, st Status)
}

type nopObserver struct{}

func (nopObserver) ObserveWait(string, time.Duration) {}
func (nopObserver) ObserveHold(string, time.Duration) {}
func (nopObserver) ObserveRequest(string, Status)     {}
