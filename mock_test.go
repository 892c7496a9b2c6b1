package bluetooth

import (
	"context"
	"sync"
	"time"
)

// mockBackend is a scriptable Backend used by this package's own tests to
// drive Scanner and Client without a real OS adapter. It never touches the
// network or any platform API.
type mockBackend struct {
	mu sync.Mutex

	scanning bool
	onEvent  func(AdvertisementEvent)

	// connectFunc, when set, lets a test control exactly what Connect
	// returns; otherwise Connect succeeds and hands back conn.
	connectFunc func(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error)
	conn        *mockConnection
}

func newMockBackend() *mockBackend {
	return &mockBackend{}
}

func (b *mockBackend) ScanStart(filters ScanFilters, onEvent func(AdvertisementEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scanning {
		return errScanning
	}
	b.scanning = true
	b.onEvent = onEvent
	return nil
}

func (b *mockBackend) ScanStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.scanning {
		return errNotScanning
	}
	b.scanning = false
	b.onEvent = nil
	return nil
}

// emit delivers evt to the active scan callback, as if a backend had
// received it from the OS. It is a no-op if no scan is active.
func (b *mockBackend) emit(evt AdvertisementEvent) {
	b.mu.Lock()
	cb := b.onEvent
	b.mu.Unlock()
	if cb != nil {
		cb(evt)
	}
}

func (b *mockBackend) Connect(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectFunc != nil {
		return b.connectFunc(ctx, identity, timeout)
	}
	if b.conn == nil {
		b.conn = newMockConnection()
	}
	return b.conn, nil
}

// mockConnection is a scriptable BackendConnection. Tests populate
// services/reads/writes before handing the connection to a Client, and can
// call deliverNotification or disconnect to simulate asynchronous backend
// activity.
type mockConnection struct {
	mu sync.Mutex

	services []RawService

	// values holds the current value of every readable handle.
	values map[uint16][]byte

	// writes records every write made to a handle, in order, for test
	// assertions.
	writes map[uint16][][]byte

	subs map[uint16]func([]byte)

	disconnectOnce sync.Once
	disconnectCb   func(error)

	mtu uint16

	failRead  map[uint16]error
	failWrite map[uint16]error

	pairErr   error
	unpairErr error
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		values:    make(map[uint16][]byte),
		writes:    make(map[uint16][][]byte),
		subs:      make(map[uint16]func([]byte)),
		failRead:  make(map[uint16]error),
		failWrite: make(map[uint16]error),
		mtu:       23,
	}
}

func (c *mockConnection) setServices(services []RawService) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = services
}

func (c *mockConnection) setValue(handle uint16, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[handle] = data
}

func (c *mockConnection) setMTU(mtu uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtu = mtu
}

func (c *mockConnection) setReadError(handle uint16, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRead[handle] = err
}

func (c *mockConnection) setWriteError(handle uint16, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrite[handle] = err
}

func (c *mockConnection) writesFor(handle uint16) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes[handle]...)
}

// deliverNotification simulates an unsolicited value update arriving for a
// subscribed handle. It is a no-op if nothing is subscribed to handle.
func (c *mockConnection) deliverNotification(handle uint16, data []byte) {
	c.mu.Lock()
	cb := c.subs[handle]
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// disconnect simulates a peripheral-initiated (or adapter-initiated) drop,
// distinct from a caller-driven Disconnect() call.
func (c *mockConnection) disconnect(cause error) {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	c.disconnectOnce.Do(func() {
		if cb != nil {
			cb(cause)
		}
	})
}

func (c *mockConnection) DiscoverServices(ctx context.Context, useCached bool) ([]RawService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.services, nil
}

func (c *mockConnection) Read(ctx context.Context, handle uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failRead[handle]; err != nil {
		return nil, err
	}
	return c.values[handle], nil
}

func (c *mockConnection) Write(ctx context.Context, handle uint16, data []byte, withResponse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failWrite[handle]; err != nil {
		return err
	}
	c.writes[handle] = append(c.writes[handle], append([]byte(nil), data...))
	c.values[handle] = append([]byte(nil), data...)
	return nil
}

func (c *mockConnection) Subscribe(ctx context.Context, handle uint16, kind NotifyKind, onValue func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[handle] = onValue
	return nil
}

func (c *mockConnection) Unsubscribe(ctx context.Context, handle uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[handle]; !ok {
		return ErrNotSubscribed
	}
	delete(c.subs, handle)
	return nil
}

func (c *mockConnection) MTU() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtu, nil
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	c.disconnectOnce.Do(func() {
		if cb != nil {
			cb(nil)
		}
	})
	return nil
}

func (c *mockConnection) Pair(ctx context.Context, agent PairingAgent) error {
	return c.pairErr
}

func (c *mockConnection) Unpair(ctx context.Context) error {
	return c.unpairErr
}

func (c *mockConnection) SetDisconnectedCallback(cb func(cause error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}
