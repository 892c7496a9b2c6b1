package bluetooth

import (
	"testing"
	"time"
)

func TestDiscoveredDeviceMergeFirstEvent(t *testing.T) {
	var d DiscoveredDevice
	now := time.Unix(1000, 0)
	d.merge(Advertisement{LocalName: "Thermostat", HasName: true, RSSI: -50}, now)

	if d.FirstSeen != now || d.LastSeen != now {
		t.Fatalf("expected FirstSeen and LastSeen to both be %v, got %v and %v", now, d.FirstSeen, d.LastSeen)
	}
	if d.MostRecentAdvertisement.LocalName != "Thermostat" {
		t.Errorf("expected merged LocalName %q, got %q", "Thermostat", d.MostRecentAdvertisement.LocalName)
	}
	if d.MostRecentRSSI != -50 {
		t.Errorf("expected MostRecentRSSI -50, got %d", d.MostRecentRSSI)
	}
}

func TestDiscoveredDeviceMergeKeepsOlderNameWhenNewEventHasNone(t *testing.T) {
	var d DiscoveredDevice
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(1001, 0)

	d.merge(Advertisement{LocalName: "Thermostat", HasName: true, RSSI: -50}, t0)
	d.merge(Advertisement{RSSI: -48}, t1)

	if d.MostRecentAdvertisement.LocalName != "Thermostat" {
		t.Errorf("a scan-response event with no name should not erase a previously seen name, got %q", d.MostRecentAdvertisement.LocalName)
	}
	if d.MostRecentRSSI != -48 {
		t.Errorf("RSSI should always reflect the most recent event, got %d", d.MostRecentRSSI)
	}
	if d.LastSeen != t1 {
		t.Errorf("expected LastSeen updated to %v, got %v", t1, d.LastSeen)
	}
	if d.FirstSeen != t0 {
		t.Errorf("FirstSeen must not move on a later event, got %v", d.FirstSeen)
	}
}

func TestDiscoveredDeviceMergeUnionsManufacturerData(t *testing.T) {
	var d DiscoveredDevice
	now := time.Unix(1000, 0)

	d.merge(Advertisement{ManufacturerData: map[CompanyID][]byte{0x004C: {1, 2, 3}}}, now)
	d.merge(Advertisement{ManufacturerData: map[CompanyID][]byte{0x0075: {4, 5}}}, now)

	if len(d.MostRecentAdvertisement.ManufacturerData) != 2 {
		t.Fatalf("expected manufacturer data from both events to be present, got %v", d.MostRecentAdvertisement.ManufacturerData)
	}
	if string(d.MostRecentAdvertisement.ManufacturerData[0x004C]) != string([]byte{1, 2, 3}) {
		t.Errorf("expected first company's data to survive the union merge")
	}
}

func TestDiscoveredDeviceMergeOverwritesManufacturerDataForSameCompany(t *testing.T) {
	var d DiscoveredDevice
	now := time.Unix(1000, 0)

	d.merge(Advertisement{ManufacturerData: map[CompanyID][]byte{0x004C: {1, 2, 3}}}, now)
	d.merge(Advertisement{ManufacturerData: map[CompanyID][]byte{0x004C: {9}}}, now)

	if string(d.MostRecentAdvertisement.ManufacturerData[0x004C]) != string([]byte{9}) {
		t.Errorf("expected newer data for the same company to overwrite the older value, got %v",
			d.MostRecentAdvertisement.ManufacturerData[0x004C])
	}
}

func TestDiscoveredDeviceMergeDeduplicatesServiceUUIDs(t *testing.T) {
	var d DiscoveredDevice
	now := time.Unix(1000, 0)
	hrs := New16BitUUID(0x180D)

	d.merge(Advertisement{ServiceUUIDs: []UUID{hrs}}, now)
	d.merge(Advertisement{ServiceUUIDs: []UUID{hrs}}, now)

	if len(d.MostRecentAdvertisement.ServiceUUIDs) != 1 {
		t.Errorf("expected the same service UUID seen twice to be deduplicated, got %v", d.MostRecentAdvertisement.ServiceUUIDs)
	}
}

func TestDiscoveredDeviceMergeKeepsTXPowerUntilOverwritten(t *testing.T) {
	var d DiscoveredDevice
	now := time.Unix(1000, 0)

	d.merge(Advertisement{TXPower: -4, HasTXPower: true}, now)
	d.merge(Advertisement{}, now)

	if !d.MostRecentAdvertisement.HasTXPower || d.MostRecentAdvertisement.TXPower != -4 {
		t.Errorf("expected TXPower to persist across an event that doesn't report it")
	}
}
