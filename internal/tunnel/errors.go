package tunnel

import "fmt"

// ProvisioningError means the virtual interface could not be established.
// Fatal to the Start attempt and surfaced synchronously to its caller; the
// controller stays uninitialized and nothing is retried automatically.
type ProvisioningError struct {
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision virtual interface: %v", e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// TransportBuildError means the resolver URL was invalid or the DoH
// transport could not be constructed. Recoverable: retried on the next
// UpdateDNS or Start.
type TransportBuildError struct {
	Err error
}

func (e *TransportBuildError) Error() string {
	return fmt.Sprintf("build DNS transport: %v", e.Err)
}

func (e *TransportBuildError) Unwrap() error { return e.Err }

// EngineConnectError means the tunnel engine refused the file descriptor or
// the transport. Treated exactly like TransportBuildError.
type EngineConnectError struct {
	Err error
}

func (e *EngineConnectError) Error() string {
	return fmt.Sprintf("connect tunnel engine: %v", e.Err)
}

func (e *EngineConnectError) Unwrap() error { return e.Err }

// IOCleanupError means releasing the interface handle failed. Logged and
// never escalated: cleanup proceeds regardless.
type IOCleanupError struct {
	Err error
}

func (e *IOCleanupError) Error() string {
	return fmt.Sprintf("release interface handle: %v", e.Err)
}

func (e *IOCleanupError) Unwrap() error { return e.Err }
