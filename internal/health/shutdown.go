package health

import "sync/atomic"

// ready gates the readiness probe during startup and drain. It starts true
// so single-binary deployments without an orchestrator stay reachable.
var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate. Main sets it false when shutdown begins
// so the load balancer stops routing new requests while in-flight ones drain.
func SetReady(v bool) {
	ready.Store(v)
}

// Ready reports the current gate position.
func Ready() bool {
	return ready.Load()
}
