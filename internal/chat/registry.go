package chat

import (
	"sync"
)

// Identity is what a connection is registered as: a visitor bound to one
// session, or a member of the admin pool.
type Identity struct {
	Role      Role
	SessionID string
}

// Registry maps live connections to identities. At most one visitor
// connection is registered per session; the newest registration wins.
type Registry struct {
	mu       sync.RWMutex
	visitors map[string]*Conn // sessionID -> conn
	admins   map[string]*Conn // connID -> conn
	bound    map[*Conn]string // visitor conn -> sessionID it is registered under
}

func NewRegistry() *Registry {
	return &Registry{
		visitors: make(map[string]*Conn),
		admins:   make(map[string]*Conn),
		bound:    make(map[*Conn]string),
	}
}

// Register adds conn under id. It returns the visitor connection it
// replaced, if any. The replaced connection is left open.
func (r *Registry) Register(conn *Conn, id Identity) (evicted *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch id.Role {
	case RoleAdmin:
		r.admins[conn.ID] = conn
		return nil

	case RoleVisitor:
		if prev, ok := r.bound[conn]; ok && prev != id.SessionID {
			if r.visitors[prev] == conn {
				delete(r.visitors, prev)
			}
		}

		old := r.visitors[id.SessionID]
		if old == conn {
			old = nil
		}
		if old != nil {
			delete(r.bound, old)
		}

		r.visitors[id.SessionID] = conn
		r.bound[conn] = id.SessionID
		return old
	}
	return nil
}

// Unregister removes conn. An evicted visitor connection never removes the
// entry of the connection that replaced it.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.admins[conn.ID] == conn {
		delete(r.admins, conn.ID)
	}

	if sessionID, ok := r.bound[conn]; ok {
		if r.visitors[sessionID] == conn {
			delete(r.visitors, sessionID)
		}
		delete(r.bound, conn)
	}
}

func (r *Registry) LookupBySession(sessionID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.visitors[sessionID]
	return conn, ok
}

// Admins returns a snapshot of the admin pool.
func (r *Registry) Admins() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.admins))
	for _, c := range r.admins {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) IsAdmin(conn *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[conn.ID] == conn
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.visitors) + len(r.admins)
}

func (r *Registry) AdminCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.admins)
}
