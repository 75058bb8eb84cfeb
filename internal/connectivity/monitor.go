// Package connectivity reports network reachability transitions to the
// offline engine. The engine only ever reacts to the offline-to-online
// edge; monitors are expected to deliver deduplicated state changes.
package connectivity

// Monitor delivers network reachability changes to subscribers.
type Monitor interface {
	// Subscribe registers fn to be called with the new state on every
	// reachability change. The returned handle stops delivery when
	// released.
	Subscribe(fn func(online bool)) Subscription
}

// Subscription is a scoped registration handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops delivery to the associated callback. Calling it
	// more than once is a no-op.
	Unsubscribe()
}
