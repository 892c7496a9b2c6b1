//go:build darwin

// Implements the PeripheralDelegate interface: the callbacks CoreBluetooth
// delivers about one connected peripheral's GATT traffic (as opposed to
// CMDelegate's central-manager-wide events).

package macbt

import (
	"github.com/tinygo-org/cbgo"
)

// PrphDelegate handles per-peripheral callbacks from CoreBluetooth. Every
// field is optional; a nil field means the event is dropped.
type PrphDelegate struct {
	OnDiscoverServices                 func(prph cbgo.Peripheral, err error)
	OnDiscoverIncludedServices         func(prph cbgo.Peripheral, svc cbgo.Service, err error)
	OnDiscoverCharacteristics          func(prph cbgo.Peripheral, svc cbgo.Service, err error)
	OnDiscoverDescriptors              func(prph cbgo.Peripheral, chr cbgo.Characteristic, err error)
	OnUpdateValueForCharacteristic     func(prph cbgo.Peripheral, chr cbgo.Characteristic, err error)
	OnUpdateValueForDescriptor         func(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error)
	OnWriteValueForCharacteristic      func(prph cbgo.Peripheral, chr cbgo.Characteristic, err error)
	OnWriteValueForDescriptor          func(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error)
	OnUpdateNotificationState          func(prph cbgo.Peripheral, chr cbgo.Characteristic, err error)
	OnReadRSSI                         func(prph cbgo.Peripheral, rssi int, err error)
	OnUpdateName                       func(prph cbgo.Peripheral)
	OnModifyServices                   func(prph cbgo.Peripheral, invalidated []cbgo.Service)
	OnReadyToSendWriteWithoutResponse  func(prph cbgo.Peripheral)
}

func (d *PrphDelegate) DidDiscoverServices(prph cbgo.Peripheral, err error) {
	if d.OnDiscoverServices != nil {
		d.OnDiscoverServices(prph, err)
	}
}

func (d *PrphDelegate) DidDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	if d.OnDiscoverCharacteristics != nil {
		d.OnDiscoverCharacteristics(prph, svc, err)
	}
}

func (d *PrphDelegate) DidDiscoverDescriptorsForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.OnDiscoverDescriptors != nil {
		d.OnDiscoverDescriptors(prph, chr, err)
	}
}

func (d *PrphDelegate) DidUpdateValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.OnUpdateValueForCharacteristic != nil {
		d.OnUpdateValueForCharacteristic(prph, chr, err)
	}
}

func (d *PrphDelegate) DidUpdateValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	if d.OnUpdateValueForDescriptor != nil {
		d.OnUpdateValueForDescriptor(prph, dsc, err)
	}
}

func (d *PrphDelegate) DidWriteValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.OnWriteValueForCharacteristic != nil {
		d.OnWriteValueForCharacteristic(prph, chr, err)
	}
}

func (d *PrphDelegate) DidWriteValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	if d.OnWriteValueForDescriptor != nil {
		d.OnWriteValueForDescriptor(prph, dsc, err)
	}
}

func (d *PrphDelegate) DidUpdateNotificationState(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	if d.OnUpdateNotificationState != nil {
		d.OnUpdateNotificationState(prph, chr, err)
	}
}

func (d *PrphDelegate) DidDiscoverIncludedServices(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	if d.OnDiscoverIncludedServices != nil {
		d.OnDiscoverIncludedServices(prph, svc, err)
	}
}

func (d *PrphDelegate) DidReadRSSI(prph cbgo.Peripheral, rssi int, err error) {
	if d.OnReadRSSI != nil {
		d.OnReadRSSI(prph, rssi, err)
	}
}

func (d *PrphDelegate) DidUpdateName(prph cbgo.Peripheral) {
	if d.OnUpdateName != nil {
		d.OnUpdateName(prph)
	}
}

func (d *PrphDelegate) DidModifyServices(prph cbgo.Peripheral, invalidated []cbgo.Service) {
	if d.OnModifyServices != nil {
		d.OnModifyServices(prph, invalidated)
	}
}

func (d *PrphDelegate) IsReadyToSendWriteWithoutResponse(prph cbgo.Peripheral) {
	if d.OnReadyToSendWriteWithoutResponse != nil {
		d.OnReadyToSendWriteWithoutResponse(prph)
	}
}
