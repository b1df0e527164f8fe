package pool

// EventSink receives sandbox lifecycle events. The gateway's websocket
// broadcaster satisfies this.
type EventSink interface {
	Publish(event string, data interface{})
}

// Lifecycle event names published to the sink
const (
	EventSandboxSpawned = "sandbox_spawned"
	EventSandboxReused  = "sandbox_reused"
	EventSandboxEvicted = "sandbox_evicted"
	EventSandboxCrashed = "sandbox_crashed"
)
