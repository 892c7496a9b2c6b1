//go:build !baremetal

// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package bluetooth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/agent"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
)

// linuxBackend talks to BlueZ over D-Bus through go-bluetooth. It satisfies
// Backend; every exported method of Client/Scanner reaches BlueZ only
// through this type and linuxConnection below.
type linuxBackend struct {
	mu      sync.Mutex
	adapter *adapter.Adapter1

	scanning   bool
	cancelScan func()
}

// newDefaultBackend returns the Backend for the current OS; exported as
// DefaultBackend.
func newDefaultBackend() (Backend, error) {
	a, err := api.GetDefaultAdapter()
	if err != nil {
		return nil, backendError("linux", 0, err)
	}
	return &linuxBackend{adapter: a}, nil
}

// ScanStart configures a BlueZ discovery filter and starts discovery. BlueZ
// never reports a new advertisement packet directly; instead, devices
// already known to BlueZ are emitted once up front and every subsequent
// property change (RSSI, ManufacturerData, ...) on a watched device is
// treated as a fresh advertisement event, following the approach in
// go-bluetooth's own device-watch examples.
func (b *linuxBackend) ScanStart(filters ScanFilters, onEvent func(AdvertisementEvent)) error {
	b.mu.Lock()
	if b.scanning {
		b.mu.Unlock()
		return errScanning
	}
	b.mu.Unlock()

	discoveryFilter := map[string]interface{}{
		"Transport": "le",
	}
	for k, v := range filters.PlatformSpecific {
		discoveryFilter[k] = v
	}
	if len(filters.ServiceUUIDs) > 0 {
		uuidStrs := make([]string, len(filters.ServiceUUIDs))
		for i, u := range filters.ServiceUUIDs {
			uuidStrs[i] = u.String()
		}
		discoveryFilter["UUIDs"] = uuidStrs
	}
	if err := b.adapter.SetDiscoveryFilter(discoveryFilter); err != nil {
		return backendError("linux", 0, err)
	}

	if err := b.adapter.StartDiscovery(); err != nil {
		return backendError("linux", 0, err)
	}

	discoveryChan, cancelChan, err := b.adapter.OnDeviceDiscovered()
	if err != nil {
		_ = b.adapter.StopDiscovery()
		return backendError("linux", 0, err)
	}

	b.mu.Lock()
	b.scanning = true
	b.cancelScan = cancelChan
	b.mu.Unlock()

	existing, err := b.adapter.GetDevices()
	if err == nil {
		for _, dev := range existing {
			b.watchDevice(dev, onEvent)
			onEvent(deviceToEvent(dev))
		}
	}

	go func() {
		for result := range discoveryChan {
			if result.Type != adapter.DeviceAdded {
				continue
			}
			dev, err := device.NewDevice1(result.Path)
			if err != nil || dev == nil {
				continue
			}
			onEvent(deviceToEvent(dev))
			b.watchDevice(dev, onEvent)
		}
	}()

	return nil
}

// watchDevice subscribes to property-change events on dev and re-emits the
// device as a fresh AdvertisementEvent on every change, since BlueZ caches
// devices rather than streaming raw packets.
func (b *linuxBackend) watchDevice(dev *device.Device1, onEvent func(AdvertisementEvent)) {
	ch, err := dev.WatchProperties()
	if err != nil {
		return
	}
	go func() {
		for change := range ch {
			if change == nil {
				return
			}
			props, _ := dev.Properties.ToMap()
			props[change.Name] = change.Value
			dev.Properties, _ = dev.Properties.FromMap(props)
			onEvent(deviceToEvent(dev))
		}
	}()
}

func deviceToEvent(dev *device.Device1) AdvertisementEvent {
	mac, _ := ParseMAC(dev.Properties.Address)
	addrType := AddressTypePublic
	if dev.Properties.AddressType == "random" {
		addrType = AddressTypeRandom
	}

	adv := Advertisement{
		LocalName: dev.Properties.Name,
		HasName:   dev.Properties.Name != "",
		RSSI:      int16(dev.Properties.RSSI),
	}
	if dev.Properties.TxPower != 0 {
		adv.TXPower = int8(dev.Properties.TxPower)
		adv.HasTXPower = true
	}
	for _, uuid := range dev.Properties.UUIDs {
		if parsed, err := ParseUUID(uuid); err == nil {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, parsed)
		}
	}
	if len(dev.Properties.ManufacturerData) > 0 {
		adv.ManufacturerData = make(map[CompanyID][]byte, len(dev.Properties.ManufacturerData))
		for id, v := range dev.Properties.ManufacturerData {
			if b, ok := v.([]byte); ok {
				adv.ManufacturerData[CompanyID(id)] = b
			}
		}
	}
	if len(dev.Properties.ServiceData) > 0 {
		adv.ServiceData = make(map[UUID][]byte, len(dev.Properties.ServiceData))
		for uuidStr, v := range dev.Properties.ServiceData {
			parsed, err := ParseUUID(uuidStr)
			if err != nil {
				continue
			}
			if b, ok := v.([]byte); ok {
				adv.ServiceData[parsed] = b
			}
		}
	}

	return AdvertisementEvent{
		Identity:      NewMACIdentity(mac, addrType),
		Advertisement: adv,
	}
}

func (b *linuxBackend) ScanStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.scanning {
		return nil
	}
	_ = b.adapter.StopDiscovery()
	_ = b.adapter.SetDiscoveryFilter(nil)
	if b.cancelScan != nil {
		b.cancelScan()
	}
	b.scanning = false
	b.cancelScan = nil
	return nil
}

// Connect resolves identity to a BlueZ device object and connects to it,
// retrying transient org.bluez.Error.InProgress races transparently.
func (b *linuxBackend) Connect(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error) {
	if !identity.IsAddress() {
		return nil, wrapError(KindInvalidArgument, "linux backend requires an address-form DeviceIdentity", nil)
	}

	dev, err := b.adapter.GetDeviceByAddress(identity.String())
	if err != nil || dev == nil {
		return nil, newError(KindDeviceNotFound, "device not found on adapter")
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = withInProgressRetry(connectCtx, func() error {
		if connected, _ := dev.GetConnected(); connected {
			return nil
		}
		if connErr := dev.Connect(); connErr != nil {
			return classifyBlueZError(connErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	conn := &linuxConnection{
		dev:          dev,
		charByHandle: make(map[uint16]*gatt.GattCharacteristic1),
		descByHandle: make(map[uint16]*gatt.GattDescriptor1),
	}
	conn.watchDisconnect()
	return conn, nil
}

// classifyBlueZError recognizes org.bluez.Error.InProgress so
// withInProgressRetry can retry it transparently; every other D-Bus error
// surfaces as an opaque backend error.
func classifyBlueZError(err error) error {
	if dbusErr, ok := err.(godbus.Error); ok {
		if strings.Contains(dbusErr.Name, "InProgress") {
			return &Error{Kind: KindBackendError, Platform: "linux", Code: backendCodeInProgress, Message: dbusErr.Name, Cause: err}
		}
	}
	return backendError("linux", 0, err)
}

// linuxConnection is a live GATT connection to one BlueZ device. BlueZ does
// not expose raw ATT handles over D-Bus, so handles here are synthesized by
// DiscoverServices in a stable traversal order; they are meaningful only
// for the lifetime of one linuxConnection.
type linuxConnection struct {
	dev *device.Device1

	mu           sync.Mutex
	charByHandle map[uint16]*gatt.GattCharacteristic1
	descByHandle map[uint16]*gatt.GattDescriptor1

	disconnectOnce sync.Once
	disconnectCb   func(error)
}

func (c *linuxConnection) watchDisconnect() {
	ch, err := c.dev.WatchProperties()
	if err != nil {
		return
	}
	go func() {
		for change := range ch {
			if change == nil {
				c.fireDisconnect(nil)
				return
			}
			if change.Name == "Connected" {
				if connected, ok := change.Value.(bool); ok && !connected {
					c.fireDisconnect(nil)
					return
				}
			}
		}
	}()
}

func (c *linuxConnection) fireDisconnect(cause error) {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	c.disconnectOnce.Do(func() {
		if cb != nil {
			cb(cause)
		}
	})
}

func (c *linuxConnection) SetDisconnectedCallback(cb func(cause error)) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

// DiscoverServices walks every GattService1/GattCharacteristic1/
// GattDescriptor1 object BlueZ exposes under this device's object path,
// assigning each a synthetic handle in traversal order (services first,
// then each service's characteristics and their descriptors). useCached is
// advisory only: BlueZ always serves its own object cache, so it has no
// effect here beyond skipping the ServicesResolved wait.
func (c *linuxConnection) DiscoverServices(ctx context.Context, useCached bool) ([]RawService, error) {
	if !useCached {
		deadline := time.Now().Add(10 * time.Second)
		for {
			resolved, err := c.dev.GetServicesResolved()
			if err != nil {
				return nil, backendError("linux", 0, err)
			}
			if resolved {
				break
			}
			if time.Now().After(deadline) {
				return nil, wrapError(KindTimeout, "timed out waiting for BlueZ to resolve services", nil)
			}
			select {
			case <-ctx.Done():
				return nil, wrapError(KindCancelled, "DiscoverServices cancelled", ctx.Err())
			case <-time.After(20 * time.Millisecond):
			}
		}
	}

	om, err := bluez.GetObjectManager()
	if err != nil {
		return nil, backendError("linux", 0, err)
	}
	list, err := om.GetManagedObjects()
	if err != nil {
		return nil, backendError("linux", 0, err)
	}
	paths := make([]string, 0, len(list))
	for p := range list {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	c.mu.Lock()
	defer c.mu.Unlock()

	var handle uint16
	nextHandle := func() uint16 { handle++; return handle }

	devicePrefix := string(c.dev.Path()) + "/service"
	var services []RawService
	for _, svcPath := range paths {
		if !strings.HasPrefix(svcPath, devicePrefix) || len(strings.Split(svcPath[len(string(c.dev.Path())+"/"):], "/")) != 1 {
			continue
		}
		svc, err := gatt.NewGattService1(godbus.ObjectPath(svcPath))
		if err != nil {
			continue
		}
		svcUUID, err := ParseUUID(svc.Properties.UUID)
		if err != nil {
			continue
		}
		rawSvc := RawService{UUID: svcUUID, Handle: nextHandle()}

		charPrefix := svcPath + "/char"
		for _, charPath := range paths {
			if !strings.HasPrefix(charPath, charPrefix) || len(strings.Split(charPath[len(svcPath)+1:], "/")) != 1 {
				continue
			}
			ch, err := gatt.NewGattCharacteristic1(godbus.ObjectPath(charPath))
			if err != nil {
				continue
			}
			chUUID, err := ParseUUID(ch.Properties.UUID)
			if err != nil {
				continue
			}
			chHandle := nextHandle()
			c.charByHandle[chHandle] = ch

			rawChar := RawCharacteristic{
				UUID:        chUUID,
				Handle:      chHandle,
				ValueHandle: chHandle,
				Properties:  blueZFlagsToProperties(ch.Properties.Flags),
			}

			descPrefix := charPath + "/desc"
			for _, descPath := range paths {
				if !strings.HasPrefix(descPath, descPrefix) || len(strings.Split(descPath[len(charPath)+1:], "/")) != 1 {
					continue
				}
				desc, err := gatt.NewGattDescriptor1(godbus.ObjectPath(descPath))
				if err != nil {
					continue
				}
				descUUID, err := ParseUUID(desc.Properties.UUID)
				if err != nil {
					continue
				}
				descHandle := nextHandle()
				c.descByHandle[descHandle] = desc
				rawChar.Descriptors = append(rawChar.Descriptors, RawDescriptor{UUID: descUUID, Handle: descHandle})
			}

			rawSvc.Characteristics = append(rawSvc.Characteristics, rawChar)
		}

		services = append(services, rawSvc)
	}

	return services, nil
}

// blueZFlagsToProperties maps BlueZ's string-valued characteristic "Flags"
// onto the CharProperties bitset.
func blueZFlagsToProperties(flags []string) CharProperties {
	var props CharProperties
	for _, f := range flags {
		switch f {
		case "broadcast":
			props |= CharPropBroadcast
		case "read":
			props |= CharPropRead
		case "write-without-response":
			props |= CharPropWriteWithoutResponse
		case "write":
			props |= CharPropWrite
		case "notify":
			props |= CharPropNotify
		case "indicate":
			props |= CharPropIndicate
		case "authenticated-signed-writes":
			props |= CharPropAuthenticatedSignedWrites
		case "extended-properties":
			props |= CharPropExtendedProperties
		}
	}
	return props
}

func (c *linuxConnection) Read(ctx context.Context, handle uint16) ([]byte, error) {
	c.mu.Lock()
	ch, isChar := c.charByHandle[handle]
	desc, isDesc := c.descByHandle[handle]
	c.mu.Unlock()

	switch {
	case isChar:
		data, err := ch.ReadValue(nil)
		if err != nil {
			return nil, classifyBlueZError(err)
		}
		return data, nil
	case isDesc:
		data, err := desc.ReadValue(nil)
		if err != nil {
			return nil, classifyBlueZError(err)
		}
		return data, nil
	default:
		return nil, ErrAttributeNotFound
	}
}

func (c *linuxConnection) Write(ctx context.Context, handle uint16, data []byte, withResponse bool) error {
	c.mu.Lock()
	ch, isChar := c.charByHandle[handle]
	desc, isDesc := c.descByHandle[handle]
	c.mu.Unlock()

	switch {
	case isChar:
		if withResponse {
			return classifyBlueZError(ch.WriteValue(data, nil))
		}
		return classifyBlueZError(ch.WriteValue(data, map[string]interface{}{"type": "command"}))
	case isDesc:
		return classifyBlueZError(desc.WriteValue(data, nil))
	default:
		return ErrAttributeNotFound
	}
}

func (c *linuxConnection) Subscribe(ctx context.Context, handle uint16, kind NotifyKind, onValue func([]byte)) error {
	c.mu.Lock()
	ch, ok := c.charByHandle[handle]
	c.mu.Unlock()
	if !ok {
		return ErrAttributeNotFound
	}

	propChan, err := ch.WatchProperties()
	if err != nil {
		return classifyBlueZError(err)
	}
	go func() {
		for update := range propChan {
			if update == nil {
				return
			}
			if update.Interface == "org.bluez.GattCharacteristic1" && update.Name == "Value" {
				if data, ok := update.Value.([]byte); ok {
					onValue(data)
				}
			}
		}
	}()
	return classifyBlueZError(ch.StartNotify())
}

func (c *linuxConnection) Unsubscribe(ctx context.Context, handle uint16) error {
	c.mu.Lock()
	ch, ok := c.charByHandle[handle]
	c.mu.Unlock()
	if !ok {
		return ErrAttributeNotFound
	}
	return classifyBlueZError(ch.StopNotify())
}

func (c *linuxConnection) MTU() (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.charByHandle {
		mtu, err := ch.GetProperty("MTU")
		if err == nil {
			if v, ok := mtu.Value().(uint16); ok {
				return v, nil
			}
		}
	}
	return 0, newError(KindNotSupported, "BlueZ exposes MTU only per-characteristic and none has been discovered yet")
}

func (c *linuxConnection) Disconnect() error {
	err := c.dev.Disconnect()
	c.fireDisconnect(nil)
	if err != nil {
		return backendError("linux", 0, err)
	}
	return nil
}

// Pair registers pairing as the process-wide BlueZ agent for the duration
// of the handshake, so passkey/confirmation requests from bluetoothd are
// routed to it, then triggers pairing and releases the agent. BlueZ's
// org.bluez.AgentManager1 is process-scoped, not per-device, so only one
// pairing can be interactively driven at a time; callers that don't supply
// pairing get BlueZ's default (headless) pairing behavior.
func (c *linuxConnection) Pair(ctx context.Context, pairing PairingAgent) error {
	if pairing != nil {
		conn, err := godbus.SystemBus()
		if err != nil {
			return backendError("linux", 0, err)
		}
		ag := &linuxPairingAgent{ctx: ctx, delegate: pairing, path: agent.NextAgentPath()}
		if err := agent.ExposeAgent(conn, ag, agent.CapKeyboardDisplay, true); err != nil {
			return backendError("linux", 0, err)
		}
		defer agent.RemoveAgent(ag)
	}
	if err := c.dev.Pair(); err != nil {
		return classifyBlueZError(err)
	}
	return nil
}

// linuxPairingAgent adapts a PairingAgent to BlueZ's org.bluez.Agent1
// D-Bus interface (agent.Agent1Interface). Only the passkey and numeric-
// comparison hooks this package exposes are implemented; every other
// Agent1 method fails the request rather than silently approving it.
type linuxPairingAgent struct {
	ctx      context.Context
	delegate PairingAgent
	path     godbus.ObjectPath
}

func (a *linuxPairingAgent) Path() godbus.ObjectPath {
	return a.path
}

func (a *linuxPairingAgent) Interface() string {
	return agent.Agent1Interface
}

func (a *linuxPairingAgent) Release() *godbus.Error { return nil }

func (a *linuxPairingAgent) Cancel() *godbus.Error { return nil }

func (a *linuxPairingAgent) RequestPinCode(device godbus.ObjectPath) (string, *godbus.Error) {
	return "", godbus.MakeFailedError(errors.New("pin code pairing is not supported"))
}

func (a *linuxPairingAgent) DisplayPinCode(device godbus.ObjectPath, pincode string) *godbus.Error {
	return godbus.MakeFailedError(errors.New("pin code pairing is not supported"))
}

func (a *linuxPairingAgent) RequestPasskey(device godbus.ObjectPath) (uint32, *godbus.Error) {
	passkey, err := a.delegate.RequestPasskey(a.ctx)
	if err != nil {
		return 0, godbus.MakeFailedError(err)
	}
	return passkey, nil
}

func (a *linuxPairingAgent) DisplayPasskey(device godbus.ObjectPath, passkey uint32, entered uint16) *godbus.Error {
	return nil
}

func (a *linuxPairingAgent) RequestConfirmation(device godbus.ObjectPath, passkey uint32) *godbus.Error {
	confirmed, err := a.delegate.RequestConfirmation(a.ctx, passkey)
	if err != nil {
		return godbus.MakeFailedError(err)
	}
	if !confirmed {
		return godbus.MakeFailedError(errors.New("pairing confirmation was rejected"))
	}
	return nil
}

func (a *linuxPairingAgent) RequestAuthorization(device godbus.ObjectPath) *godbus.Error {
	return godbus.MakeFailedError(errors.New("authorization-only pairing is not supported"))
}

func (a *linuxPairingAgent) AuthorizeService(device godbus.ObjectPath, uuid string) *godbus.Error {
	return godbus.MakeFailedError(errors.New("service authorization is not supported"))
}

func (c *linuxConnection) Unpair(ctx context.Context) error {
	adapterPath := string(c.dev.Path())
	idx := strings.LastIndex(adapterPath, "/dev_")
	if idx < 0 {
		return newError(KindNotSupported, "could not determine adapter path for unpair")
	}
	a, err := adapter.NewAdapter1(godbus.ObjectPath(adapterPath[:idx]))
	if err != nil {
		return backendError("linux", 0, err)
	}
	if err := a.RemoveDevice(c.dev.Path()); err != nil {
		return classifyBlueZError(err)
	}
	return nil
}
