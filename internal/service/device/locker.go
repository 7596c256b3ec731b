package device

import (
	"context"
	"sync"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
)

// LocalLocker serializes pulls within one process. Use the Redis locker when
// several workers share the devices.
type LocalLocker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{active: make(map[string]struct{})}
}

// Acquire implements device.Locker.
func (l *LocalLocker) Acquire(ctx context.Context, deviceID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[deviceID]; busy {
		return nil, device.ErrSyncInProgress
	}
	l.active[deviceID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, deviceID)
			l.mu.Unlock()
		})
	}, nil
}
