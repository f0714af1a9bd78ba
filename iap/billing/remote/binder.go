package remote

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/code-payments/cashier/iap/billing"
)

// Binder is a billing.Binder that connects to a remote billing Server.
//
// Connection notices are delivered from a background goroutine once the
// channel is ready. Any other state after that is reported as a disconnect,
// and a channel that recovers is reported as a new connection.
type Binder struct {
	log         *zap.Logger
	target      string
	packageName string
	dialOpts    []grpc.DialOption

	mu       sync.Mutex
	bindings map[billing.ServiceConnection]*binding
}

type binding struct {
	cc     *grpc.ClientConn
	cancel context.CancelFunc
}

func NewBinder(log *zap.Logger, target, packageName string, dialOpts ...grpc.DialOption) *Binder {
	return &Binder{
		log:         log.With(zap.String("target", target)),
		target:      target,
		packageName: packageName,
		dialOpts:    dialOpts,
		bindings:    make(map[billing.ServiceConnection]*binding),
	}
}

// Resolve reports whether the target can be dialed at all. It does not
// connect.
func (b *Binder) Resolve(_ context.Context) bool {
	if b.target == "" {
		return false
	}

	cc, err := grpc.NewClient(b.target, b.dialOpts...)
	if err != nil {
		b.log.Debug("Billing target does not resolve", zap.Error(err))
		return false
	}
	_ = cc.Close()
	return true
}

func (b *Binder) Bind(_ context.Context, conn billing.ServiceConnection) error {
	cc, err := grpc.NewClient(b.target, b.dialOpts...)
	if err != nil {
		return fmt.Errorf("%w: %w", billing.ErrServiceUnresolvable, err)
	}

	// The watch outlives the Bind call and ends with Unbind.
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if prev, ok := b.bindings[conn]; ok {
		prev.cancel()
		_ = prev.cc.Close()
	}
	b.bindings[conn] = &binding{cc: cc, cancel: cancel}
	b.mu.Unlock()

	cc.Connect()
	go b.watch(ctx, cc, conn)

	return nil
}

func (b *Binder) Unbind(conn billing.ServiceConnection) {
	b.mu.Lock()
	bound, ok := b.bindings[conn]
	delete(b.bindings, conn)
	b.mu.Unlock()

	if !ok {
		return
	}

	bound.cancel()
	if err := bound.cc.Close(); err != nil {
		b.log.Warn("Failed to close billing connection", zap.Error(err))
	}
}

func (b *Binder) watch(ctx context.Context, cc *grpc.ClientConn, conn billing.ServiceConnection) {
	connected := false
	for {
		if ctx.Err() != nil {
			return
		}

		state := cc.GetState()
		if state == connectivity.Ready {
			if !connected {
				connected = true
				b.log.Debug("Billing service connected")
				conn.OnServiceConnected(NewClient(cc, b.packageName))
			}
		} else if connected {
			// A ready channel that loses its transport drops to idle.
			connected = false
			b.log.Debug("Billing service disconnected", zap.Stringer("state", state))
			conn.OnServiceDisconnected()
		}

		switch state {
		case connectivity.Shutdown:
			return
		case connectivity.Idle:
			cc.Connect()
		}

		if !cc.WaitForStateChange(ctx, state) {
			return
		}
	}
}
