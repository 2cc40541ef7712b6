package coordinator

import (
	"net"

	"golang.org/x/exp/slices"
)

// registryEntry pairs a registered participant's instance id with the
// connection last used by that participant, mirroring the "registration
// table" of spec §3.
type registryEntry struct {
	instanceID int32
	conn       net.Conn
}

// Registry is the coordinator-side mapping from instance id to stream
// endpoint, populated during the registration window and consulted when
// broadcasting a VALIDATION_RESULT. It is a plain data structure; the
// coordinator's single dispatch goroutine is the only caller, so it carries
// no internal locking (see spec §5: the rendezvous slot and registration
// table are owned exclusively by the coordinator loop).
type Registry struct {
	entries []registryEntry
}

// NewRegistry returns an empty registration table.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register records or updates the connection used by instanceID, using the
// same slices.IndexFunc lookup-by-predicate idiom as the cluster registry
// it's grounded on.
func (r *Registry) Register(instanceID int32, conn net.Conn) {
	idx := slices.IndexFunc(r.entries, func(e registryEntry) bool { return e.instanceID == instanceID })
	if idx >= 0 {
		r.entries[idx].conn = conn
		return
	}
	r.entries = append(r.entries, registryEntry{instanceID: instanceID, conn: conn})
}

// Lookup returns the connection registered for instanceID, if any.
func (r *Registry) Lookup(instanceID int32) (net.Conn, bool) {
	idx := slices.IndexFunc(r.entries, func(e registryEntry) bool { return e.instanceID == instanceID })
	if idx < 0 {
		return nil, false
	}
	return r.entries[idx].conn, true
}

// Remove drops instanceID from the table, e.g. after its connection closes.
func (r *Registry) Remove(instanceID int32) {
	idx := slices.IndexFunc(r.entries, func(e registryEntry) bool { return e.instanceID == instanceID })
	if idx < 0 {
		return
	}
	r.entries = slices.Delete(r.entries, idx, idx+1)
}

// RemoveConn drops whichever entry (if any) is using conn, returning the
// instance id that was removed and whether one was found. Used when a
// connection's read loop observes the peer has gone away before a clean
// SHUTDOWN was received.
func (r *Registry) RemoveConn(conn net.Conn) (int32, bool) {
	idx := slices.IndexFunc(r.entries, func(e registryEntry) bool { return e.conn == conn })
	if idx < 0 {
		return 0, false
	}
	id := r.entries[idx].instanceID
	r.entries = slices.Delete(r.entries, idx, idx+1)
	return id, true
}

// Count returns the number of distinct registered instance ids.
func (r *Registry) Count() int {
	return len(r.entries)
}

// InstanceIDs returns the currently registered instance ids in registration order.
func (r *Registry) InstanceIDs() []int32 {
	ids := make([]int32, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.instanceID
	}
	return ids
}

// All returns a snapshot copy of the current entries.
func (r *Registry) All() []registryEntry {
	return append([]registryEntry(nil), r.entries...)
}
