package memory

import (
	"context"
	"sync"

	"github.com/code-payments/cashier/iap/billing"
)

// Binder is a billing.Binder that hands out an in-process service.
type Binder struct {
	// Unresolvable makes Resolve report that no billing service exists.
	Unresolvable bool

	// DenyPermission makes Bind fail with billing.ErrPermissionDenied.
	DenyPermission bool

	// Manual defers connection notices until Connect is called. Otherwise
	// Bind reports the connection before returning.
	Manual bool

	svc billing.Service

	mu    sync.Mutex
	conns []billing.ServiceConnection
}

func NewBinder(svc billing.Service) *Binder {
	return &Binder{svc: svc}
}

func (b *Binder) Resolve(_ context.Context) bool {
	return !b.Unresolvable
}

func (b *Binder) Bind(_ context.Context, conn billing.ServiceConnection) error {
	if b.Unresolvable {
		return billing.ErrServiceUnresolvable
	}
	if b.DenyPermission {
		return billing.ErrPermissionDenied
	}

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	if !b.Manual {
		conn.OnServiceConnected(b.svc)
	}
	return nil
}

func (b *Binder) Unbind(conn billing.ServiceConnection) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.conns {
		if c == conn {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			return
		}
	}
}

// Connect delivers the connection notice to every bound connection.
func (b *Binder) Connect() {
	for _, conn := range b.bound() {
		conn.OnServiceConnected(b.svc)
	}
}

// Disconnect delivers the disconnection notice to every bound connection.
func (b *Binder) Disconnect() {
	for _, conn := range b.bound() {
		conn.OnServiceDisconnected()
	}
}

// Bound returns the number of live bindings.
func (b *Binder) Bound() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.conns)
}

func (b *Binder) bound() []billing.ServiceConnection {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns := make([]billing.ServiceConnection, len(b.conns))
	copy(conns, b.conns)
	return conns
}
