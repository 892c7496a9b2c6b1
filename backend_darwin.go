package bluetooth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tinygo-org/cbgo"

	"github.com/oscentral/bluetooth/macbt"
)

// darwinBackend drives CoreBluetooth through cbgo's CentralManager. Every
// discovered cbgo.Peripheral is kept alive in discovered, keyed by its
// platform identifier, for the lifetime of the process: CoreBluetooth
// requires the same Peripheral object be reused for Connect.
type darwinBackend struct {
	cm       cbgo.CentralManager
	delegate *macbt.CMDelegate

	mu         sync.Mutex
	discovered map[string]cbgo.Peripheral
	onScanEvent func(AdvertisementEvent)
	scanning    bool

	pendingConnect map[string]chan error
	liveConns      map[string]*darwinConnection
}

func newDefaultBackend() (Backend, error) {
	b := &darwinBackend{
		discovered:     make(map[string]cbgo.Peripheral),
		pendingConnect: make(map[string]chan error),
		liveConns:      make(map[string]*darwinConnection),
	}
	b.delegate = &macbt.CMDelegate{
		OnDiscoverPeripheral:      b.handleDiscover,
		OnConnectPeripheral:       b.handleConnect,
		OnFailToConnectPeripheral: b.handleFailToConnect,
		OnDisconnectPeripheral:    b.handleDisconnect,
	}
	b.cm = cbgo.NewCentralManager(b.delegate)
	return b, nil
}

func (b *darwinBackend) handleDiscover(cmgr cbgo.CentralManager, prph cbgo.Peripheral, advFields cbgo.AdvFields, rssi int) {
	id := prph.Identifier().String()

	b.mu.Lock()
	b.discovered[id] = prph
	onEvent := b.onScanEvent
	b.mu.Unlock()

	if onEvent == nil {
		return
	}

	adv := Advertisement{
		LocalName: advFields.LocalName,
		HasName:   advFields.LocalName != "",
		RSSI:      int16(rssi),
	}
	if advFields.TxPowerLevel != 0 {
		adv.TXPower = int8(advFields.TxPowerLevel)
		adv.HasTXPower = true
	}
	for _, u := range advFields.ServiceUUIDs {
		if parsed, err := ParseUUID(u.String()); err == nil {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, parsed)
		}
	}
	if len(advFields.ManufacturerData) > 0 {
		// CoreBluetooth surfaces one manufacturer-data blob with the company
		// ID in its first two bytes rather than a map, per Apple's
		// CBAdvertisementDataManufacturerDataKey.
		if len(advFields.ManufacturerData) >= 2 {
			companyID := CompanyID(uint16(advFields.ManufacturerData[0]) | uint16(advFields.ManufacturerData[1])<<8)
			adv.ManufacturerData = map[CompanyID][]byte{companyID: advFields.ManufacturerData[2:]}
		}
	}
	if len(advFields.ServiceData) > 0 {
		adv.ServiceData = make(map[UUID][]byte, len(advFields.ServiceData))
		for u, data := range advFields.ServiceData {
			if parsed, err := ParseUUID(u.String()); err == nil {
				adv.ServiceData[parsed] = data
			}
		}
	}

	onEvent(AdvertisementEvent{
		Identity:      NewPlatformIdentity(id),
		Advertisement: adv,
	})
}

func (b *darwinBackend) handleConnect(cmgr cbgo.CentralManager, prph cbgo.Peripheral) {
	b.resolvePendingConnect(prph.Identifier().String(), nil)
}

func (b *darwinBackend) handleFailToConnect(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	if err == nil {
		err = errors.New("connect failed")
	}
	b.resolvePendingConnect(prph.Identifier().String(), err)
}

func (b *darwinBackend) handleDisconnect(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	id := prph.Identifier().String()
	b.resolvePendingConnect(id, err)

	b.mu.Lock()
	conn, ok := b.liveConns[id]
	delete(b.liveConns, id)
	b.mu.Unlock()
	if ok {
		conn.fireDisconnected(err)
	}
}

func (b *darwinBackend) resolvePendingConnect(id string, err error) {
	b.mu.Lock()
	ch, ok := b.pendingConnect[id]
	delete(b.pendingConnect, id)
	b.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (b *darwinBackend) ScanStart(filters ScanFilters, onEvent func(AdvertisementEvent)) error {
	b.mu.Lock()
	if b.scanning {
		b.mu.Unlock()
		return errScanning
	}
	b.onScanEvent = onEvent
	b.scanning = true
	b.mu.Unlock()

	var cbUUIDs []cbgo.UUID
	for _, u := range filters.ServiceUUIDs {
		if parsed, err := cbgo.ParseUUID(u.String()); err == nil {
			cbUUIDs = append(cbUUIDs, parsed)
		}
	}

	b.cm.Scan(cbUUIDs, &cbgo.CentralManagerScanOpts{AllowDuplicates: true})
	return nil
}

func (b *darwinBackend) ScanStop() error {
	b.mu.Lock()
	if !b.scanning {
		b.mu.Unlock()
		return nil
	}
	b.scanning = false
	b.onScanEvent = nil
	b.mu.Unlock()

	b.cm.StopScan()
	return nil
}

// Connect requires a DeviceIdentity minted by this backend's own discovery
// (a platform UUID); it cannot connect by raw Bluetooth address, since
// CoreBluetooth never exposes one.
func (b *darwinBackend) Connect(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error) {
	if identity.IsAddress() {
		return nil, wrapError(KindInvalidArgument, "darwin backend requires a platform-UUID DeviceIdentity from its own scan", nil)
	}

	id := identity.String()
	b.mu.Lock()
	prph, ok := b.discovered[id]
	b.mu.Unlock()
	if !ok {
		return nil, ErrDeviceNotFound
	}

	done := make(chan error, 1)
	b.mu.Lock()
	b.pendingConnect[id] = done
	b.mu.Unlock()

	b.cm.Connect(prph, nil)

	select {
	case err := <-done:
		if err != nil {
			return nil, backendError("darwin", 0, err)
		}
	case <-time.After(timeout):
		b.mu.Lock()
		delete(b.pendingConnect, id)
		b.mu.Unlock()
		return nil, wrapError(KindTimeout, "connect timed out", nil)
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pendingConnect, id)
		b.mu.Unlock()
		return nil, wrapError(KindCancelled, "connect cancelled", ctx.Err())
	}

	conn := newDarwinConnection(b.cm, prph)
	b.mu.Lock()
	b.liveConns[id] = conn
	b.mu.Unlock()
	return conn, nil
}

// darwinConnection is a live GATT connection to one CoreBluetooth
// peripheral. CoreBluetooth, like BlueZ, never exposes ATT handles;
// DiscoverServices assigns synthetic ones in traversal order, stable only
// for this connection's lifetime.
type darwinConnection struct {
	cm       cbgo.CentralManager
	prph     cbgo.Peripheral
	delegate *macbt.PrphDelegate

	mu sync.Mutex

	servicesDone chan error
	charsDone    map[string]chan error // keyed by service UUID string

	charsByHandle map[uint16]*darwinChar
	descByHandle  map[uint16]cbgo.Descriptor

	disconnectOnce sync.Once
	disconnectCb   func(error)
}

// darwinChar pairs a native cbgo.Characteristic with the synchronization
// state needed to discriminate a pending Read's completion from an
// unsolicited notification delivered through the same
// DidUpdateValueForCharacteristic callback.
type darwinChar struct {
	native      cbgo.Characteristic
	pendingRead chan error
	pendingWrite chan error
	subscribed   bool
	onValue      func([]byte)
}

func newDarwinConnection(cm cbgo.CentralManager, prph cbgo.Peripheral) *darwinConnection {
	c := &darwinConnection{
		cm:            cm,
		prph:          prph,
		charsDone:     make(map[string]chan error),
		charsByHandle: make(map[uint16]*darwinChar),
		descByHandle:  make(map[uint16]cbgo.Descriptor),
	}
	c.delegate = &macbt.PrphDelegate{
		OnDiscoverServices:             c.onDiscoverServices,
		OnDiscoverCharacteristics:      c.onDiscoverCharacteristics,
		OnUpdateValueForCharacteristic: c.onUpdateValue,
		OnWriteValueForCharacteristic:  c.onWriteValue,
		OnUpdateNotificationState:      c.onNotificationState,
	}
	prph.SetDelegate(c.delegate)
	return c
}

func (c *darwinConnection) onDiscoverServices(prph cbgo.Peripheral, err error) {
	c.mu.Lock()
	ch := c.servicesDone
	c.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

func (c *darwinConnection) onDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	c.mu.Lock()
	ch, ok := c.charsDone[svc.UUID().String()]
	c.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (c *darwinConnection) charForNative(native cbgo.Characteristic) *darwinChar {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dc := range c.charsByHandle {
		if dc.native.UUID().String() == native.UUID().String() {
			return dc
		}
	}
	return nil
}

func (c *darwinConnection) onUpdateValue(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	dc := c.charForNative(chr)
	if dc == nil {
		return
	}
	c.mu.Lock()
	pending := dc.pendingRead
	dc.pendingRead = nil
	onValue := dc.onValue
	subscribed := dc.subscribed
	c.mu.Unlock()

	if pending != nil {
		pending <- err
		return
	}
	if subscribed && err == nil && onValue != nil {
		onValue(chr.Value())
	}
}

func (c *darwinConnection) onWriteValue(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	dc := c.charForNative(chr)
	if dc == nil {
		return
	}
	c.mu.Lock()
	pending := dc.pendingWrite
	dc.pendingWrite = nil
	c.mu.Unlock()
	if pending != nil {
		pending <- err
	}
}

func (c *darwinConnection) onNotificationState(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	// CoreBluetooth confirms (un)subscription asynchronously; Subscribe and
	// Unsubscribe below don't block on it since the Backend interface gives
	// them no obvious channel to wait on without risking a deadlock if the
	// peripheral never acknowledges. A failed subscribe is only logged here;
	// Subscribe has already returned nil to the caller.
	if err != nil {
		Log.WithField("characteristic", chr.UUID().String()).Warn("bluetooth: CoreBluetooth notification state update failed")
	}
}

func (c *darwinConnection) SetDisconnectedCallback(cb func(cause error)) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

// fireDisconnected is invoked by the owning darwinBackend's central-manager
// delegate (not wired here directly since CoreBluetooth reports disconnects
// to the CentralManagerDelegate, not the PeripheralDelegate).
func (c *darwinConnection) fireDisconnected(cause error) {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	c.disconnectOnce.Do(func() {
		if cb != nil {
			cb(cause)
		}
	})
}

func (c *darwinConnection) DiscoverServices(ctx context.Context, useCached bool) ([]RawService, error) {
	c.mu.Lock()
	c.servicesDone = make(chan error, 1)
	servicesDone := c.servicesDone
	c.mu.Unlock()

	c.prph.DiscoverServices(nil)

	select {
	case err := <-servicesDone:
		if err != nil {
			return nil, backendError("darwin", 0, err)
		}
	case <-ctx.Done():
		return nil, wrapError(KindCancelled, "DiscoverServices cancelled", ctx.Err())
	case <-time.After(10 * time.Second):
		return nil, wrapError(KindTimeout, "timed out discovering services", nil)
	}

	nativeServices := c.prph.Services()
	sort.Slice(nativeServices, func(i, j int) bool {
		return nativeServices[i].UUID().String() < nativeServices[j].UUID().String()
	})

	var handle uint16
	nextHandle := func() uint16 { handle++; return handle }

	var out []RawService
	for _, svc := range nativeServices {
		svcUUID, err := ParseUUID(svc.UUID().String())
		if err != nil {
			continue
		}
		rawSvc := RawService{UUID: svcUUID, Handle: nextHandle()}

		charsDone := make(chan error, 1)
		c.mu.Lock()
		c.charsDone[svc.UUID().String()] = charsDone
		c.mu.Unlock()

		c.prph.DiscoverCharacteristics(nil, svc)

		select {
		case err := <-charsDone:
			if err != nil {
				return nil, backendError("darwin", 0, err)
			}
		case <-ctx.Done():
			return nil, wrapError(KindCancelled, "DiscoverCharacteristics cancelled", ctx.Err())
		case <-time.After(10 * time.Second):
			return nil, wrapError(KindTimeout, "timed out discovering characteristics", nil)
		}

		nativeChars := svc.Characteristics()
		sort.Slice(nativeChars, func(i, j int) bool {
			return nativeChars[i].UUID().String() < nativeChars[j].UUID().String()
		})

		for _, ch := range nativeChars {
			chUUID, err := ParseUUID(ch.UUID().String())
			if err != nil {
				continue
			}
			chHandle := nextHandle()

			c.mu.Lock()
			c.charsByHandle[chHandle] = &darwinChar{native: ch}
			c.mu.Unlock()

			out2 := RawCharacteristic{
				UUID:        chUUID,
				Handle:      chHandle,
				ValueHandle: chHandle,
				Properties:  cbPropertiesToProperties(ch.Properties()),
			}
			rawSvc.Characteristics = append(rawSvc.Characteristics, out2)
		}

		out = append(out, rawSvc)
	}

	return out, nil
}

func cbPropertiesToProperties(p cbgo.CharacteristicProperty) CharProperties {
	var props CharProperties
	if p&cbgo.CharacteristicPropertyBroadcast != 0 {
		props |= CharPropBroadcast
	}
	if p&cbgo.CharacteristicPropertyRead != 0 {
		props |= CharPropRead
	}
	if p&cbgo.CharacteristicPropertyWriteWithoutResponse != 0 {
		props |= CharPropWriteWithoutResponse
	}
	if p&cbgo.CharacteristicPropertyWrite != 0 {
		props |= CharPropWrite
	}
	if p&cbgo.CharacteristicPropertyNotify != 0 {
		props |= CharPropNotify
	}
	if p&cbgo.CharacteristicPropertyIndicate != 0 {
		props |= CharPropIndicate
	}
	return props
}

func (c *darwinConnection) Read(ctx context.Context, handle uint16) ([]byte, error) {
	c.mu.Lock()
	dc, ok := c.charsByHandle[handle]
	if !ok {
		c.mu.Unlock()
		return nil, ErrAttributeNotFound
	}
	readDone := make(chan error, 1)
	dc.pendingRead = readDone
	native := dc.native
	c.mu.Unlock()

	c.prph.ReadCharacteristic(native)

	select {
	case err := <-readDone:
		if err != nil {
			return nil, backendError("darwin", 0, err)
		}
		return native.Value(), nil
	case <-ctx.Done():
		return nil, wrapError(KindCancelled, "read cancelled", ctx.Err())
	case <-time.After(10 * time.Second):
		return nil, wrapError(KindTimeout, "read timed out", nil)
	}
}

func (c *darwinConnection) Write(ctx context.Context, handle uint16, data []byte, withResponse bool) error {
	c.mu.Lock()
	dc, ok := c.charsByHandle[handle]
	if !ok {
		c.mu.Unlock()
		return ErrAttributeNotFound
	}
	if !withResponse {
		native := dc.native
		c.mu.Unlock()
		c.prph.WriteCharacteristic(data, native, false)
		return nil
	}
	writeDone := make(chan error, 1)
	dc.pendingWrite = writeDone
	native := dc.native
	c.mu.Unlock()

	c.prph.WriteCharacteristic(data, native, true)

	select {
	case err := <-writeDone:
		if err != nil {
			return backendError("darwin", 0, err)
		}
		return nil
	case <-ctx.Done():
		return wrapError(KindCancelled, "write cancelled", ctx.Err())
	case <-time.After(10 * time.Second):
		return wrapError(KindTimeout, "write timed out", nil)
	}
}

func (c *darwinConnection) Subscribe(ctx context.Context, handle uint16, kind NotifyKind, onValue func([]byte)) error {
	c.mu.Lock()
	dc, ok := c.charsByHandle[handle]
	if !ok {
		c.mu.Unlock()
		return ErrAttributeNotFound
	}
	dc.subscribed = true
	dc.onValue = onValue
	native := dc.native
	c.mu.Unlock()

	c.prph.SetNotify(true, native)
	return nil
}

func (c *darwinConnection) Unsubscribe(ctx context.Context, handle uint16) error {
	c.mu.Lock()
	dc, ok := c.charsByHandle[handle]
	if !ok {
		c.mu.Unlock()
		return ErrAttributeNotFound
	}
	dc.subscribed = false
	dc.onValue = nil
	native := dc.native
	c.mu.Unlock()

	c.prph.SetNotify(false, native)
	return nil
}

func (c *darwinConnection) MTU() (uint16, error) {
	return uint16(c.prph.MaximumWriteValueLength(false)) + 3, nil
}

func (c *darwinConnection) Disconnect() error {
	c.cm.CancelConnect(c.prph)
	c.fireDisconnected(nil)
	return nil
}

// Pair is not exposed by CoreBluetooth: pairing happens implicitly, driven
// by the OS, the first time an operation needs an encrypted or
// authenticated link.
func (c *darwinConnection) Pair(ctx context.Context, agent PairingAgent) error {
	return ErrNotSupported
}

func (c *darwinConnection) Unpair(ctx context.Context) error {
	return ErrNotSupported
}
