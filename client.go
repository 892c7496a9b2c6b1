package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ConnectionState is one of the states in the Client state machine.
// Transitions are mutated only by Client methods; callers observe it via
// Client.State.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// ConnectOptions configures a Connect call.
type ConnectOptions struct {
	// Timeout bounds the low-level connect attempt. Zero means the
	// default of 10 seconds.
	Timeout time.Duration

	// DangerousUseBleakCache permits DiscoverServices to return an
	// OS-cached attribute table without re-resolving it. This is an
	// advisory escape hatch — do not enable it unless you understand that
	// the peripheral's GATT database may have changed since it was cached.
	DangerousUseBleakCache bool
}

// DefaultConnectTimeout is used when ConnectOptions.Timeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// disconnectTimeoutFloor* record the observed teardown times: Windows
// needs up to 120s to tear down a GATT session cleanly, other backends
// complete well within 10s. Neither constant bounds any wait: Client and
// the backends apply no disconnect timeout of their own.
const (
	disconnectTimeoutFloorWindows = 120 * time.Second
	disconnectTimeoutFloorDefault = 10 * time.Second
)

// Client is a GATT client connected (or connectable) to a single
// peripheral. One Client owns one OS-level connection; to talk to multiple
// peripherals concurrently, use multiple Clients.
type Client struct {
	backend Backend

	mu    sync.Mutex
	state ConnectionState
	conn  BackendConnection
	table *AttributeTable

	generation uint64

	sched *scheduler

	disconnectedCallback func(error)
	disconnectFired      bool

	// opLocks serializes operations per characteristic handle: the client
	// does not interleave a second operation on the same characteristic
	// until the first completes.
	opLocks   map[uint16]*sync.Mutex
	opLocksMu sync.Mutex

	subs   map[uint16]*subscription
	subsMu sync.Mutex
}

type subscription struct {
	handle   uint16
	kind     NotifyKind
	callback func(handle uint16, data []byte)
}

// NewClient constructs a disconnected Client against the given backend
// (normally DefaultBackend(); a mock Backend may be substituted in tests).
func NewClient(backend Backend) *Client {
	return &Client{
		backend: backend,
		opLocks: make(map[uint16]*sync.Mutex),
		subs:    make(map[uint16]*subscription),
	}
}

// State returns the client's current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetDisconnectedCallback registers the callback invoked exactly once per
// connection lifetime, on any transition into Disconnected from Connected
// or Disconnecting, regardless of cause.
func (c *Client) SetDisconnectedCallback(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectedCallback = cb
}

// Connect transitions Disconnected -> Connecting, performs the low-level
// connect and then service discovery, and only then enters Connected (or
// returns to Disconnected on failure), so the Client is fully attributed
// before returning.
func (c *Client) Connect(ctx context.Context, device DiscoveredDevice, opts ConnectOptions) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return wrapError(KindInvalidArgument, fmt.Sprintf("cannot connect from state %s", c.state), nil)
	}
	c.state = StateConnecting
	c.disconnectFired = false
	c.mu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.backend.Connect(connectCtx, device.Identity, timeout)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		if connectCtx.Err() != nil {
			return wrapError(KindTimeout, "connect timed out", err)
		}
		return err
	}

	raw, err := conn.DiscoverServices(ctx, opts.DangerousUseBleakCache)
	if err != nil {
		_ = conn.Disconnect()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	mtu, err := conn.MTU()
	if err != nil {
		mtu = 23 // ATT default MTU when a backend can't report one yet.
	}

	c.mu.Lock()
	c.generation++
	c.conn = conn
	c.table = buildAttributeTable(raw, mtu, c.generation)
	c.state = StateConnected
	c.sched = newScheduler(128)
	c.mu.Unlock()

	conn.SetDisconnectedCallback(func(cause error) {
		c.sched.post(func() { c.handleDisconnect(cause) })
	})

	return nil
}

// handleDisconnect runs on the client's scheduler goroutine and guarantees
// the disconnected callback fires exactly once. It ends the scheduler with
// signalStop, not stop: handleDisconnect itself runs on the scheduler
// goroutine, and stop's wait for that goroutine to exit would be a
// self-join that never returns.
func (c *Client) handleDisconnect(cause error) {
	c.mu.Lock()
	alreadyFired := c.disconnectFired
	if c.state == StateConnected || c.state == StateDisconnecting {
		c.state = StateDisconnected
		c.disconnectFired = true
	}
	cb := c.disconnectedCallback
	sched := c.sched
	c.mu.Unlock()

	c.clearSubscriptions()

	if !alreadyFired && cb != nil {
		cb(cause)
	}
	if sched != nil {
		sched.signalStop()
	}
}

func (c *Client) clearSubscriptions() {
	c.subsMu.Lock()
	c.subs = make(map[uint16]*subscription)
	c.subsMu.Unlock()
}

// Disconnect tears down the connection. It is idempotent. It waits for the
// backend's Disconnect to return and applies no timeout of its own. Do not
// call it from a notification callback (StartNotify) or the disconnected
// callback itself
// — both run on the client's scheduler goroutine, and Disconnect's wait for
// that goroutine to exit would never return.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.state = StateDisconnecting
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Disconnect()
	}

	c.mu.Lock()
	alreadyFired := c.disconnectFired
	c.state = StateDisconnected
	c.disconnectFired = true
	cb := c.disconnectedCallback
	sched := c.sched
	c.mu.Unlock()

	c.clearSubscriptions()

	if !alreadyFired && cb != nil {
		cb(nil)
	}
	if sched != nil {
		sched.stop()
	}

	return err
}

// requireConnected returns the live connection and attribute table, or
// KindNotConnected if the client isn't Connected.
func (c *Client) requireConnected() (BackendConnection, *AttributeTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil, nil, ErrNotConnected
	}
	return c.conn, c.table, nil
}

// translateOpError remaps a backend operation error to ErrNotConnected when
// the client has meanwhile transitioned out of Connected. A peripheral drop
// racing an in-flight Read/Write/Subscribe surfaces as some backend-native
// failure (a D-Bus "NotConnected" error, a WinRT "object closed" exception,
// a CoreBluetooth callback with a non-nil error after the disconnect
// delegate call) rather than a clean cancellation; checking state here
// gives callers one consistent error regardless of which race they hit.
func (c *Client) translateOpError(err error) error {
	if err == nil {
		return nil
	}
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return err
}

// lockCharacteristic returns (and lazily creates) the per-handle mutex
// used to serialize operations on one characteristic.
func (c *Client) lockCharacteristic(handle uint16) *sync.Mutex {
	c.opLocksMu.Lock()
	defer c.opLocksMu.Unlock()
	m, ok := c.opLocks[handle]
	if !ok {
		m = &sync.Mutex{}
		c.opLocks[handle] = m
	}
	return m
}

// MTUSize returns the negotiated ATT MTU.
func (c *Client) MTUSize() (uint16, error) {
	conn, table, err := c.requireConnected()
	if err != nil {
		return 0, err
	}
	mtu, err := conn.MTU()
	if err != nil {
		return 0, err
	}
	table.setMTU(mtu)
	return mtu, nil
}

// resolve looks up spec against the live attribute table, translating a
// stale-generation lookup (a *Characteristic captured before a reconnect)
// into a clear error.
func (c *Client) resolve(spec CharSpec) (*Characteristic, *AttributeTable, error) {
	_, table, err := c.requireConnected()
	if err != nil {
		return nil, nil, err
	}
	ch, err := table.resolveCharacteristic(spec)
	if err != nil {
		return nil, nil, err
	}
	return ch, table, nil
}

// ReadGATTChar reads a characteristic's current value.
func (c *Client) ReadGATTChar(ctx context.Context, spec CharSpec) ([]byte, error) {
	ch, _, err := c.resolve(spec)
	if err != nil {
		return nil, err
	}
	if !ch.properties.Has(CharPropRead) {
		return nil, ErrNotReadable
	}

	lock := c.lockCharacteristic(ch.handle)
	lock.Lock()
	defer lock.Unlock()

	conn, _, err := c.requireConnected()
	if err != nil {
		return nil, err
	}

	var data []byte
	err = withInProgressRetry(ctx, func() error {
		var opErr error
		data, opErr = conn.Read(ctx, ch.valueHandle)
		return opErr
	})
	return data, c.translateOpError(err)
}

// WriteGATTChar writes data to a characteristic. If the characteristic
// supports both write-with-response and write-without-response, response
// selects which; if it supports only one, that one is used regardless and
// a warning is logged if the caller asked for the other.
func (c *Client) WriteGATTChar(ctx context.Context, spec CharSpec, data []byte, response bool) error {
	ch, _, err := c.resolve(spec)
	if err != nil {
		return err
	}

	withResponse := c.effectiveWriteMode(ch, response)

	if !withResponse && len(data) > ch.MaxWriteWithoutResponseSize() {
		return ErrDataTooLong
	}

	lock := c.lockCharacteristic(ch.handle)
	lock.Lock()
	defer lock.Unlock()

	conn, _, err := c.requireConnected()
	if err != nil {
		return err
	}

	err = withInProgressRetry(ctx, func() error {
		return conn.Write(ctx, ch.valueHandle, data, withResponse)
	})
	return c.translateOpError(err)
}

func (c *Client) effectiveWriteMode(ch *Characteristic, requestedResponse bool) bool {
	canResponse := ch.properties.Has(CharPropWrite)
	canNoResponse := ch.properties.Has(CharPropWriteWithoutResponse)

	switch {
	case canResponse && canNoResponse:
		return requestedResponse
	case canResponse:
		if !requestedResponse {
			Log.Warn("bluetooth: characteristic only supports write-with-response; ignoring response=false")
		}
		return true
	case canNoResponse:
		if requestedResponse {
			Log.Warn("bluetooth: characteristic only supports write-without-response; ignoring response=true")
		}
		return false
	default:
		return requestedResponse
	}
}

// StartNotify subscribes to value updates from a characteristic. If the
// characteristic is indicate-only, indication is selected transparently.
// callback is invoked on the Client's scheduler goroutine, never on a
// backend thread, in arrival order.
func (c *Client) StartNotify(ctx context.Context, spec CharSpec, callback func(handle uint16, data []byte)) error {
	ch, _, err := c.resolve(spec)
	if err != nil {
		return err
	}

	var kind NotifyKind
	switch {
	case ch.properties.Has(CharPropNotify):
		kind = NotifyKindNotify
	case ch.properties.Has(CharPropIndicate):
		kind = NotifyKindIndicate
	default:
		return ErrNotifyNotSupported
	}

	c.subsMu.Lock()
	if _, exists := c.subs[ch.handle]; exists {
		c.subsMu.Unlock()
		return wrapError(KindInvalidArgument, "at most one active subscription per characteristic handle", nil)
	}
	c.subs[ch.handle] = &subscription{handle: ch.handle, kind: kind, callback: callback}
	c.subsMu.Unlock()

	conn, _, err := c.requireConnected()
	if err != nil {
		c.subsMu.Lock()
		delete(c.subs, ch.handle)
		c.subsMu.Unlock()
		return err
	}

	handle := ch.handle
	err = conn.Subscribe(ctx, ch.valueHandle, kind, func(data []byte) {
		c.dispatchNotification(handle, data)
	})
	if err != nil {
		c.subsMu.Lock()
		delete(c.subs, ch.handle)
		c.subsMu.Unlock()
		return c.translateOpError(err)
	}
	return nil
}

// dispatchNotification marshals one backend value-update event for handle
// onto the client's scheduler goroutine and invokes the still-active
// subscription's callback there, never on the backend's own thread.
// Discriminating a notification from a read response that a backend
// conflates into the same native channel (CoreBluetooth) is each backend's
// responsibility, since BackendConnection.Read already returns
// synchronously — by the time a value reaches here it is known to be a
// notification.
func (c *Client) dispatchNotification(handle uint16, data []byte) {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched == nil {
		return
	}

	sched.post(func() {
		c.subsMu.Lock()
		sub, ok := c.subs[handle]
		c.subsMu.Unlock()
		if ok {
			sub.callback(handle, data)
		}
	})
}

// StopNotify ends a subscription. After it returns, no further invocation
// of the subscription's callback occurs.
func (c *Client) StopNotify(ctx context.Context, spec CharSpec) error {
	ch, _, err := c.resolve(spec)
	if err != nil {
		return err
	}

	c.subsMu.Lock()
	_, exists := c.subs[ch.handle]
	if exists {
		delete(c.subs, ch.handle)
	}
	c.subsMu.Unlock()
	if !exists {
		return ErrNotSubscribed
	}

	conn, _, err := c.requireConnected()
	if err != nil {
		return err
	}
	return c.translateOpError(conn.Unsubscribe(ctx, ch.valueHandle))
}

// ReadGATTDescriptor reads a descriptor's raw value by handle.
func (c *Client) ReadGATTDescriptor(ctx context.Context, handle uint16) ([]byte, error) {
	conn, table, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	if _, err := table.resolveDescriptor(handle); err != nil {
		return nil, wrapError(KindAttributeNotFound, "descriptor not found", err)
	}
	var data []byte
	err = withInProgressRetry(ctx, func() error {
		var opErr error
		data, opErr = conn.Read(ctx, handle)
		return opErr
	})
	return data, c.translateOpError(err)
}

// WriteGATTDescriptor writes a descriptor's raw value by handle.
//
// Writing a Client Characteristic Configuration Descriptor directly does
// not update StartNotify/StopNotify bookkeeping; use those exclusively to
// manage subscriptions.
func (c *Client) WriteGATTDescriptor(ctx context.Context, handle uint16, data []byte) error {
	conn, table, err := c.requireConnected()
	if err != nil {
		return err
	}
	if _, err := table.resolveDescriptor(handle); err != nil {
		return wrapError(KindAttributeNotFound, "descriptor not found", err)
	}
	err = withInProgressRetry(ctx, func() error {
		return conn.Write(ctx, handle, data, true)
	})
	return c.translateOpError(err)
}

// Pair requests OS-level pairing. agent may be nil to use the platform's
// default pairing UI. Some backends return KindNotSupported.
func (c *Client) Pair(ctx context.Context, agent PairingAgent) error {
	conn, _, err := c.requireConnected()
	if err != nil {
		return err
	}
	return conn.Pair(ctx, agent)
}

// Unpair requests OS-level unpairing.
func (c *Client) Unpair(ctx context.Context) error {
	conn, _, err := c.requireConnected()
	if err != nil {
		return err
	}
	return conn.Unpair(ctx)
}

// AttributeTable returns the connected peripheral's attribute table, or
// nil if not connected.
func (c *Client) AttributeTable() *AttributeTable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}
