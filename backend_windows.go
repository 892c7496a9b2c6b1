package bluetooth

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/saltosystems/winrt-go"
	"github.com/saltosystems/winrt-go/windows/devices/bluetooth"
	"github.com/saltosystems/winrt-go/windows/devices/bluetooth/advertisement"
	"github.com/saltosystems/winrt-go/windows/devices/bluetooth/genericattributeprofile"
	"github.com/saltosystems/winrt-go/windows/foundation"
	"github.com/saltosystems/winrt-go/windows/storage/streams"
)

// windowsBackend drives BLE central mode through the WinRT
// Windows.Devices.Bluetooth APIs via winrt-go's generated bindings.
// go-ole supplies only runtime init and the handful of raw GUID/HSTRING
// primitives winrt-go itself builds on.
type windowsBackend struct {
	mu      sync.Mutex
	watcher *advertisement.BluetoothLEAdvertisementWatcher

	scanning bool
}

func newDefaultBackend() (Backend, error) {
	if err := ole.RoInitialize(1); err != nil {
		return nil, backendError("windows", 0, err)
	}
	return &windowsBackend{}, nil
}

// ScanStart registers a BluetoothLEAdvertisementWatcher. WinRT's watcher
// delivers one Received event per advertisement packet already, so unlike
// BlueZ there is no device-cache replay step here.
func (b *windowsBackend) ScanStart(filters ScanFilters, onEvent func(AdvertisementEvent)) error {
	b.mu.Lock()
	if b.scanning {
		b.mu.Unlock()
		return errScanning
	}
	b.mu.Unlock()

	watcher, err := advertisement.NewBluetoothLEAdvertisementWatcher()
	if err != nil {
		return backendError("windows", 0, err)
	}

	mode := advertisement.BluetoothLEScanningModePassive
	if filters.Active {
		mode = advertisement.BluetoothLEScanningModeActive
	}
	if err := watcher.SetScanningMode(mode); err != nil {
		watcher.Release()
		return backendError("windows", 0, err)
	}

	eventGUID := winrt.ParameterizedInstanceGUID(
		foundation.GUIDTypedEventHandler,
		advertisement.SignatureBluetoothLEAdvertisementWatcher,
		advertisement.SignatureBluetoothLEAdvertisementReceivedEventArgs,
	)
	handler := foundation.NewTypedEventHandler(ole.NewGUID(eventGUID), func(_ *foundation.TypedEventHandler, _, arg unsafe.Pointer) {
		args := (*advertisement.BluetoothLEAdvertisementReceivedEventArgs)(arg)
		event, ok := windowsAdvertisementEvent(args)
		if !ok {
			return
		}
		onEvent(event)
	})

	token, err := watcher.AddReceived(handler)
	if err != nil {
		handler.Release()
		watcher.Release()
		return backendError("windows", 0, err)
	}

	if err := watcher.Start(); err != nil {
		watcher.RemoveReceived(token)
		handler.Release()
		watcher.Release()
		return backendError("windows", 0, err)
	}

	b.mu.Lock()
	b.watcher = watcher
	b.scanning = true
	b.mu.Unlock()

	return nil
}

func (b *windowsBackend) ScanStop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.scanning {
		return errNotScanning
	}
	err := b.watcher.Stop()
	b.watcher.Release()
	b.watcher = nil
	b.scanning = false
	if err != nil {
		return backendError("windows", 0, err)
	}
	return nil
}

// windowsAdvertisementEvent translates a received-event args object into
// the backend-agnostic AdvertisementEvent shape.
func windowsAdvertisementEvent(args *advertisement.BluetoothLEAdvertisementReceivedEventArgs) (AdvertisementEvent, bool) {
	addr, err := args.GetBluetoothAddress()
	if err != nil {
		return AdvertisementEvent{}, false
	}
	mac := macFromWinAddress(addr)
	rssi, _ := args.GetRawSignalStrengthInDBm()

	adv := Advertisement{RSSI: int16(rssi)}
	winAdv, err := args.GetAdvertisement()
	if err == nil && winAdv != nil {
		if name, err := winAdv.GetLocalName(); err == nil && name != "" {
			adv.LocalName = name
			adv.HasName = true
		}
		if serviceUUIDs, err := winAdv.GetServiceUuids(); err == nil && serviceUUIDs != nil {
			size, _ := serviceUUIDs.GetSize()
			for i := uint32(0); i < size; i++ {
				guid, err := serviceUUIDs.GetAt(i)
				if err != nil {
					continue
				}
				adv.ServiceUUIDs = append(adv.ServiceUUIDs, winRTUuidToUUID(guid))
			}
		}
		if manufacturerData, err := winAdv.GetManufacturerData(); err == nil && manufacturerData != nil {
			size, _ := manufacturerData.GetSize()
			adv.ManufacturerData = make(map[CompanyID][]byte, size)
			for i := uint32(0); i < size; i++ {
				element, err := manufacturerData.GetAt(i)
				if err != nil {
					continue
				}
				data := (*advertisement.BluetoothLEManufacturerData)(element)
				companyID, _ := data.GetCompanyId()
				buf, _ := data.GetData()
				adv.ManufacturerData[CompanyID(companyID)] = windowsBufferToBytes(buf)
			}
		}
	}

	return AdvertisementEvent{
		Identity:      NewMACIdentity(mac, AddressTypePublic),
		Advertisement: adv,
	}, true
}

// Connect resolves a BluetoothLEDevice for identity's address and opens a
// GattSession with MaintainConnection set, which is WinRT's equivalent of
// an explicit connect call (the platform has no separate "connect"
// primitive; a device is connected for as long as a session keeps it so).
func (b *windowsBackend) Connect(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error) {
	if !identity.IsAddress() {
		return nil, newError(KindInvalidArgument, "windows backend requires an address-form identity")
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	winAddr := winAddressFromMAC(identity.Bytes())

	deviceOp, err := bluetooth.BluetoothLEDeviceFromBluetoothAddressAsync(winAddr)
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(connectCtx, deviceOp, bluetooth.SignatureBluetoothLEDevice); err != nil {
		return nil, err
	}
	res, err := deviceOp.GetResults()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	if uintptr(res) == 0 {
		return nil, newError(KindDeviceNotFound, "device with the given address was not found")
	}
	dev := (*bluetooth.BluetoothLEDevice)(res)

	deviceID, err := dev.GetBluetoothDeviceId()
	if err != nil {
		dev.Release()
		return nil, backendError("windows", 0, err)
	}

	sessionOp, err := genericattributeprofile.GattSessionFromDeviceIdAsync(deviceID)
	if err != nil {
		dev.Release()
		return nil, backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(connectCtx, sessionOp, genericattributeprofile.SignatureGattSession); err != nil {
		dev.Release()
		return nil, err
	}
	sessionRes, err := sessionOp.GetResults()
	if err != nil {
		dev.Release()
		return nil, backendError("windows", 0, err)
	}
	session := (*genericattributeprofile.GattSession)(sessionRes)
	if err := session.SetMaintainConnection(true); err != nil {
		dev.Release()
		session.Release()
		return nil, backendError("windows", 0, err)
	}

	conn := &windowsConnection{
		device:  dev,
		session: session,
		subs:    make(map[uint16]*windowsSubscription),
	}
	conn.watchSessionStatus()
	return conn, nil
}

func macFromWinAddress(addr uint64) MAC {
	var mac MAC
	for i := range mac {
		mac[i] = byte(addr)
		addr >>= 8
	}
	return mac
}

func winAddressFromMAC(raw []byte) uint64 {
	var addr uint64
	for i := 0; i < len(raw) && i < 6; i++ {
		addr |= uint64(raw[i]) << (8 * i)
	}
	return addr
}

// windowsChar is the synthetic-handle record for one discovered
// characteristic, mirroring the per-connection scheme used on Linux and
// macOS: WinRT never exposes a raw ATT handle either, so handles are
// assigned in discovery order and are valid only for this connection.
type windowsChar struct {
	native     *genericattributeprofile.GattCharacteristic
	properties CharProperties
}

type windowsSubscription struct {
	token   foundation.EventRegistrationToken
	handler *foundation.TypedEventHandler
}

// windowsConnection implements BackendConnection over one GattSession.
type windowsConnection struct {
	device  *bluetooth.BluetoothLEDevice
	session *genericattributeprofile.GattSession

	mu    sync.Mutex
	chars map[uint16]*windowsChar

	subsMu sync.Mutex
	subs   map[uint16]*windowsSubscription

	sessionToken   foundation.EventRegistrationToken
	sessionHandler *foundation.TypedEventHandler

	disconnectOnce sync.Once
	disconnectCb   func(cause error)
}

// watchSessionStatus observes GattSession.SessionStatusChanged, WinRT's
// signal for a peripheral-initiated disconnect; there is no separate
// "device disconnected" event on this platform.
func (c *windowsConnection) watchSessionStatus() {
	eventGUID := winrt.ParameterizedInstanceGUID(
		foundation.GUIDTypedEventHandler,
		genericattributeprofile.SignatureGattSession,
		genericattributeprofile.SignatureGattSessionStatusChangedEventArgs,
	)
	handler := foundation.NewTypedEventHandler(ole.NewGUID(eventGUID), func(_ *foundation.TypedEventHandler, _, arg unsafe.Pointer) {
		args := (*genericattributeprofile.GattSessionStatusChangedEventArgs)(arg)
		status, err := args.GetStatus()
		if err != nil {
			return
		}
		if status == genericattributeprofile.GattSessionStatusClosed {
			c.fireDisconnected(newError(KindBackendError, "gatt session closed by peer or adapter"))
		}
	})
	if token, err := c.session.AddSessionStatusChanged(handler); err == nil {
		c.sessionToken = token
		c.sessionHandler = handler
	}
}

func (c *windowsConnection) fireDisconnected(cause error) {
	c.disconnectOnce.Do(func() {
		if c.disconnectCb != nil {
			c.disconnectCb(cause)
		}
	})
}

func (c *windowsConnection) SetDisconnectedCallback(cb func(cause error)) {
	c.disconnectCb = cb
}

// DiscoverServices walks GetGattServicesWithCacheModeAsync and, per
// service, GetCharacteristicsWithCacheModeAsync, assigning synthetic
// handles in traversal order since WinRT, like CoreBluetooth and BlueZ,
// never surfaces real ATT handles to application code. Descriptors beyond
// the CCCD (handled implicitly by WriteClientCharacteristicConfiguration
// DescriptorAsync) are not separately enumerable through this API, so the
// descriptor list per characteristic is always empty on this backend.
func (c *windowsConnection) DiscoverServices(ctx context.Context, useCached bool) ([]RawService, error) {
	cacheMode := bluetooth.BluetoothCacheModeUncached
	if useCached {
		cacheMode = bluetooth.BluetoothCacheModeCached
	}

	servicesOp, err := c.device.GetGattServicesWithCacheModeAsync(cacheMode)
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(ctx, servicesOp, genericattributeprofile.SignatureGattDeviceServicesResult); err != nil {
		return nil, err
	}
	res, err := servicesOp.GetResults()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	servicesResult := (*genericattributeprofile.GattDeviceServicesResult)(res)
	status, err := servicesResult.GetStatus()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	if status != genericattributeprofile.GattCommunicationStatusSuccess {
		return nil, &Error{Kind: KindBackendError, Platform: "windows", Code: uint32(status), Message: "could not retrieve GATT services"}
	}
	servicesVector, err := servicesResult.GetServices()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	serviceCount, _ := servicesVector.GetSize()

	c.mu.Lock()
	c.chars = make(map[uint16]*windowsChar)
	c.mu.Unlock()

	var handle uint16
	var raw []RawService
	for i := uint32(0); i < serviceCount; i++ {
		s, err := servicesVector.GetAt(i)
		if err != nil {
			continue
		}
		svc := (*genericattributeprofile.GattDeviceService)(s)
		guid, err := svc.GetUuid()
		if err != nil {
			continue
		}
		handle++
		rawSvc := RawService{UUID: winRTUuidToUUID(guid), Handle: handle}

		charsOp, err := svc.GetCharacteristicsWithCacheModeAsync(cacheMode)
		if err != nil {
			return nil, backendError("windows", 0, err)
		}
		if err := awaitAsyncOperation(ctx, charsOp, genericattributeprofile.SignatureGattCharacteristicsResult); err != nil {
			return nil, err
		}
		charsRes, err := charsOp.GetResults()
		if err != nil {
			return nil, backendError("windows", 0, err)
		}
		charsResult := (*genericattributeprofile.GattCharacteristicsResult)(charsRes)
		charsVector, err := charsResult.GetCharacteristics()
		if err != nil {
			return nil, backendError("windows", 0, err)
		}
		charCount, _ := charsVector.GetSize()

		for j := uint32(0); j < charCount; j++ {
			ch, err := charsVector.GetAt(j)
			if err != nil {
				continue
			}
			native := (*genericattributeprofile.GattCharacteristic)(ch)
			charGUID, err := native.GetUuid()
			if err != nil {
				continue
			}
			winProps, err := native.GetCharacteristicProperties()
			if err != nil {
				continue
			}
			handle++
			valueHandle := handle
			props := winrtPropertiesToProperties(winProps)

			c.mu.Lock()
			c.chars[valueHandle] = &windowsChar{native: native, properties: props}
			c.mu.Unlock()

			rawSvc.Characteristics = append(rawSvc.Characteristics, RawCharacteristic{
				UUID:        winRTUuidToUUID(charGUID),
				Handle:      valueHandle,
				ValueHandle: valueHandle,
				Properties:  props,
			})
		}
		raw = append(raw, rawSvc)
	}
	return raw, nil
}

func winrtPropertiesToProperties(p genericattributeprofile.GattCharacteristicProperties) CharProperties {
	var out CharProperties
	if p&genericattributeprofile.GattCharacteristicPropertiesBroadcast != 0 {
		out |= CharPropBroadcast
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesRead != 0 {
		out |= CharPropRead
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesWriteWithoutResponse != 0 {
		out |= CharPropWriteWithoutResponse
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesWrite != 0 {
		out |= CharPropWrite
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesNotify != 0 {
		out |= CharPropNotify
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesIndicate != 0 {
		out |= CharPropIndicate
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesAuthenticatedSignedWrites != 0 {
		out |= CharPropAuthenticatedSignedWrites
	}
	if p&genericattributeprofile.GattCharacteristicPropertiesExtendedProperties != 0 {
		out |= CharPropExtendedProperties
	}
	return out
}

func (c *windowsConnection) charFor(handle uint16) (*windowsChar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[handle]
	if !ok {
		return nil, newError(KindInvalidArgument, "unknown characteristic handle")
	}
	return ch, nil
}

func (c *windowsConnection) Read(ctx context.Context, handle uint16) ([]byte, error) {
	ch, err := c.charFor(handle)
	if err != nil {
		return nil, err
	}
	readOp, err := ch.native.ReadValueWithCacheModeAsync(bluetooth.BluetoothCacheModeUncached)
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(ctx, readOp, genericattributeprofile.SignatureGattReadResult); err != nil {
		return nil, err
	}
	res, err := readOp.GetResults()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	result := (*genericattributeprofile.GattReadResult)(res)
	buf, err := result.GetValue()
	if err != nil {
		return nil, backendError("windows", 0, err)
	}
	return windowsBufferToBytes(buf), nil
}

func (c *windowsConnection) Write(ctx context.Context, handle uint16, data []byte, withResponse bool) error {
	ch, err := c.charFor(handle)
	if err != nil {
		return err
	}
	writer, err := streams.NewDataWriter()
	if err != nil {
		return backendError("windows", 0, err)
	}
	defer writer.Release()
	if err := writer.WriteBytes(uint32(len(data)), data); err != nil {
		return backendError("windows", 0, err)
	}
	buf, err := writer.DetachBuffer()
	if err != nil {
		return backendError("windows", 0, err)
	}

	mode := genericattributeprofile.GattWriteOptionWriteWithoutResponse
	if withResponse {
		mode = genericattributeprofile.GattWriteOptionWriteWithResponse
	}
	writeOp, err := ch.native.WriteValueWithOptionAsync(buf, mode)
	if err != nil {
		return backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(ctx, writeOp, genericattributeprofile.SignatureGattCommunicationStatus); err != nil {
		return err
	}
	res, err := writeOp.GetResults()
	if err != nil {
		return backendError("windows", 0, err)
	}
	status := genericattributeprofile.GattCommunicationStatus(uintptr(res))
	if status != genericattributeprofile.GattCommunicationStatusSuccess {
		return &Error{Kind: KindBackendError, Platform: "windows", Code: uint32(status), Message: "write failed"}
	}
	return nil
}

// Subscribe registers a value-changed handler and writes the CCCD. WinRT
// conflates notify and indicate delivery into the same ValueChanged event;
// which value the CCCD is written with is the only place the distinction
// is visible on this platform.
func (c *windowsConnection) Subscribe(ctx context.Context, handle uint16, kind NotifyKind, onValue func([]byte)) error {
	ch, err := c.charFor(handle)
	if err != nil {
		return err
	}

	eventGUID := winrt.ParameterizedInstanceGUID(
		foundation.GUIDTypedEventHandler,
		genericattributeprofile.SignatureGattCharacteristic,
		genericattributeprofile.SignatureGattValueChangedEventArgs,
	)
	handler := foundation.NewTypedEventHandler(ole.NewGUID(eventGUID), func(_ *foundation.TypedEventHandler, _, arg unsafe.Pointer) {
		args := (*genericattributeprofile.GattValueChangedEventArgs)(arg)
		buf, err := args.GetCharacteristicValue()
		if err != nil {
			return
		}
		onValue(windowsBufferToBytes(buf))
	})
	token, err := ch.native.AddValueChanged(handler)
	if err != nil {
		handler.Release()
		return backendError("windows", 0, err)
	}

	cccdValue := genericattributeprofile.GattClientCharacteristicConfigurationDescriptorValueNotify
	if kind == NotifyKindIndicate {
		cccdValue = genericattributeprofile.GattClientCharacteristicConfigurationDescriptorValueIndicate
	}
	writeOp, err := ch.native.WriteClientCharacteristicConfigurationDescriptorAsync(cccdValue)
	if err != nil {
		ch.native.RemoveValueChanged(token)
		handler.Release()
		return backendError("windows", 0, err)
	}
	if err := awaitAsyncOperation(ctx, writeOp, genericattributeprofile.SignatureGattCommunicationStatus); err != nil {
		ch.native.RemoveValueChanged(token)
		handler.Release()
		return err
	}
	res, err := writeOp.GetResults()
	if err != nil {
		return backendError("windows", 0, err)
	}
	if genericattributeprofile.GattCommunicationStatus(uintptr(res)) != genericattributeprofile.GattCommunicationStatusSuccess {
		ch.native.RemoveValueChanged(token)
		handler.Release()
		return newError(KindBackendError, "enabling notifications failed")
	}

	c.subsMu.Lock()
	c.subs[handle] = &windowsSubscription{token: token, handler: handler}
	c.subsMu.Unlock()
	return nil
}

func (c *windowsConnection) Unsubscribe(ctx context.Context, handle uint16) error {
	ch, err := c.charFor(handle)
	if err != nil {
		return err
	}
	c.subsMu.Lock()
	sub, ok := c.subs[handle]
	delete(c.subs, handle)
	c.subsMu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	ch.native.RemoveValueChanged(sub.token)
	sub.handler.Release()

	writeOp, err := ch.native.WriteClientCharacteristicConfigurationDescriptorAsync(genericattributeprofile.GattClientCharacteristicConfigurationDescriptorValueNone)
	if err != nil {
		return backendError("windows", 0, err)
	}
	return awaitAsyncOperation(ctx, writeOp, genericattributeprofile.SignatureGattCommunicationStatus)
}

// MTU returns the session's negotiated ATT MTU, derived from the GATT
// session's max PDU size.
func (c *windowsConnection) MTU() (uint16, error) {
	size, err := c.session.GetMaxPduSize()
	if err != nil {
		return 0, backendError("windows", 0, err)
	}
	return size, nil
}

func (c *windowsConnection) Disconnect() error {
	c.disconnectOnce.Do(func() {
		if c.disconnectCb != nil {
			c.disconnectCb(nil)
		}
	})
	if err := c.session.Close(); err != nil {
		return backendError("windows", 0, err)
	}
	if err := c.device.Close(); err != nil {
		return backendError("windows", 0, err)
	}
	return nil
}

// Pair is not exposed through Windows.Devices.Bluetooth.GenericAttributeProfile;
// pairing on this platform goes through DeviceInformation.Pairing, a
// distinct surface this package does not otherwise touch.
func (c *windowsConnection) Pair(ctx context.Context, agent PairingAgent) error {
	return ErrNotSupported
}

func (c *windowsConnection) Unpair(ctx context.Context) error {
	return ErrNotSupported
}

func windowsBufferToBytes(buf *streams.IBuffer) []byte {
	if buf == nil {
		return nil
	}
	reader, err := streams.DataReaderFromBuffer(buf)
	if err != nil {
		return nil
	}
	defer reader.Release()
	size, err := buf.GetLength()
	if err != nil || size == 0 {
		return nil
	}
	data, err := reader.ReadBytes(size)
	if err != nil {
		return nil
	}
	return data
}

// awaitAsyncOperation blocks until a WinRT IAsyncOperation completes or ctx
// is done, translating a late cancellation into KindTimeout. winrt-go
// exposes only a raw Completed event per operation, parameterized by the
// result type's signature; that plumbing is centralized here instead of
// being repeated at every call site.
func awaitAsyncOperation(ctx context.Context, asyncOp *foundation.IAsyncOperation, resultSignature string) error {
	done := make(chan error, 1)
	guid := winrt.ParameterizedInstanceGUID(foundation.GUIDAsyncOperationCompletedHandler, resultSignature)
	handler := foundation.NewAsyncOperationCompletedHandler(ole.NewGUID(guid), func(asyncInfo *foundation.IAsyncOperation, status foundation.AsyncStatus) {
		if status == foundation.AsyncStatusError {
			done <- fmt.Errorf("async operation failed with status %d", status)
			return
		}
		done <- nil
	})
	defer handler.Release()

	if err := asyncOp.SetCompleted(handler); err != nil {
		return backendError("windows", 0, err)
	}

	select {
	case err := <-done:
		if err != nil {
			return wrapError(KindBackendError, "winrt async operation failed", err)
		}
		return nil
	case <-ctx.Done():
		_ = asyncOp.Cancel()
		return wrapError(KindTimeout, "winrt async operation timed out", ctx.Err())
	}
}

// winRTUuidToUUID converts the 16-byte GUID layout WinRT uses (mixed-endian
// per COM convention) into this package's canonical UUID representation.
func winRTUuidToUUID(guid syscall.GUID) UUID {
	b := [16]byte{
		byte(guid.Data1 >> 24),
		byte(guid.Data1 >> 16),
		byte(guid.Data1 >> 8),
		byte(guid.Data1),
		byte(guid.Data2 >> 8),
		byte(guid.Data2),
		byte(guid.Data3 >> 8),
		byte(guid.Data3),
		guid.Data4[0], guid.Data4[1],
		guid.Data4[2], guid.Data4[3],
		guid.Data4[4], guid.Data4[5],
		guid.Data4[6], guid.Data4[7],
	}
	var uuid UUID
	uuid[3] = wordBE(b[0:4])
	uuid[2] = wordBE(b[4:8])
	uuid[1] = wordBE(b[8:12])
	uuid[0] = wordBE(b[12:16])
	return uuid
}
