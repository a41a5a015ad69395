package ctcp

import (
	"sync"

	"github.com/Lam920/cs144-lab/pkg/dllist"
)

// Conn is the subset of connection behavior the registry and host-facing
// scheduler need in common across variants.
type Conn interface {
	// Variant returns "stopwait" or "gbn", used as a metrics label.
	Variant() string
	// Destroy tears the connection down: call Host.ConnRemove and remove
	// it from the registry.
	Destroy()
}

// Registry replaces the reference implementation's intrusive
// `struct list_head state_list` (spec.md §9) with an ownership-disciplined
// generic container: the registry owns each node, and a *dllist.Node handle
// is the only thing a connection holds onto for self-removal.
type Registry struct {
	mu   sync.Mutex
	list *dllist.List[Conn]
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{list: dllist.New[Conn]()}
}

// Add registers c and returns a handle that must be passed to Remove exactly
// once, at teardown.
func (r *Registry) Add(c Conn) *dllist.Node[Conn] {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.list.PushBack(c)
	metricConnectionsActive.WithLabelValues(c.Variant()).Inc()
	return n
}

// Remove detaches the connection identified by n. Safe to call at most once
// per handle.
func (r *Registry) Remove(n *dllist.Node[Conn]) {
	if n == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := n.Value.Variant()
	r.list.Remove(n)
	metricConnectionsActive.WithLabelValues(v).Dec()
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Len()
}

// DestroyAll tears down every registered connection; used at process exit.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, r.list.Len())
	r.list.Each(func(n *dllist.Node[Conn]) { conns = append(conns, n.Value) })
	r.mu.Unlock()

	for _, c := range conns {
		c.Destroy()
	}
}
