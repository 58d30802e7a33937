package chat

// ConnectionRegistry maps an online user to its current connection id.
// It is the source of truth for whether a user is reachable. It holds no lock
// of its own; callers go through Service, which serializes access.
type ConnectionRegistry struct {
	conns map[string]string // userID -> connectionID
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]string)}
}

// Register binds userID to connID, replacing any previous binding.
// It returns the replaced connection id, if any.
func (r *ConnectionRegistry) Register(userID, connID string) (previous string) {
	previous = r.conns[userID]
	r.conns[userID] = connID
	return previous
}

// Unregister removes the binding for userID.
func (r *ConnectionRegistry) Unregister(userID string) {
	delete(r.conns, userID)
}

// Lookup returns the connection currently bound to userID.
func (r *ConnectionRegistry) Lookup(userID string) (string, bool) {
	connID, ok := r.conns[userID]
	return connID, ok
}

// Len returns the number of reachable users.
func (r *ConnectionRegistry) Len() int {
	return len(r.conns)
}
