//go:build darwin

// Implements the CentralManagerDelegate interface. CoreBluetooth
// communicates events asynchronously via callbacks; this file routes each
// callback to a settable func field so the backend package can wire up
// per-call synchronization without macbt knowing anything about it.

package macbt

import (
	"github.com/tinygo-org/cbgo"
)

// CMDelegate handles CentralManager callbacks from CoreBluetooth. Every
// field is optional; a nil field means the event is dropped.
type CMDelegate struct {
	OnUpdateState             func(cmgr cbgo.CentralManager)
	OnDiscoverPeripheral      func(cmgr cbgo.CentralManager, prph cbgo.Peripheral, advFields cbgo.AdvFields, rssi int)
	OnConnectPeripheral       func(cmgr cbgo.CentralManager, prph cbgo.Peripheral)
	OnFailToConnectPeripheral func(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error)
	OnDisconnectPeripheral    func(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error)
}

func (d *CMDelegate) CentralManagerDidUpdateState(cmgr cbgo.CentralManager) {
	if d.OnUpdateState != nil {
		d.OnUpdateState(cmgr)
	}
}

func (d *CMDelegate) DidDiscoverPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral,
	advFields cbgo.AdvFields, rssi int) {
	if d.OnDiscoverPeripheral != nil {
		d.OnDiscoverPeripheral(cmgr, prph, advFields, rssi)
	}
}

func (d *CMDelegate) DidConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral) {
	if d.OnConnectPeripheral != nil {
		d.OnConnectPeripheral(cmgr, prph)
	}
}

func (d *CMDelegate) DidFailToConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	if d.OnFailToConnectPeripheral != nil {
		d.OnFailToConnectPeripheral(cmgr, prph, err)
	}
}

func (d *CMDelegate) DidDisconnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	if d.OnDisconnectPeripheral != nil {
		d.OnDisconnectPeripheral(cmgr, prph, err)
	}
}
