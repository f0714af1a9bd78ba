package billing

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied    = errors.New("billing permission denied")
	ErrServiceUnresolvable = errors.New("no billing service to bind to")
)

// ServiceConnection receives lifecycle notices for a bound billing service.
//
// Notices may be delivered from any goroutine, including the one calling
// Binder.Bind before Bind returns.
type ServiceConnection interface {
	OnServiceConnected(svc Service)
	OnServiceDisconnected()
}

// Binder is the platform primitive that connects to an out-of-process billing
// service.
type Binder interface {
	// Resolve reports whether a billing capable service is available.
	Resolve(ctx context.Context) bool

	// Bind requests a connection. A nil error means the request was accepted;
	// the connection itself is reported through conn.
	Bind(ctx context.Context, conn ServiceConnection) error

	Unbind(conn ServiceConnection)
}
