package bluetooth

import "time"

// Advertisement is a single advertisement (or scan response) payload as
// received from a peripheral during one scan event.
//
// Two Advertisements for the same DeviceIdentity arriving within a scan
// session are merged into a DiscoveredDevice's stored advertisement; see
// DiscoveredDevice.merge.
type Advertisement struct {
	LocalName string // empty if the event carried no local name
	HasName   bool

	ServiceUUIDs []UUID

	// ManufacturerData maps a SIG company identifier to the bytes that
	// followed it in the advertisement.
	ManufacturerData map[CompanyID][]byte

	// ServiceData maps a service UUID to the service-data bytes associated
	// with it in the advertisement.
	ServiceData map[UUID][]byte

	TXPower    int8
	HasTXPower bool

	RSSI int16

	// PlatformData carries backend-specific extras the model above doesn't
	// capture (e.g. WinRT's raw BluetoothLEAdvertisementReceivedEventArgs
	// fields, or a BlueZ property map). Its concrete type is
	// backend-dependent; callers that need it must know which backend they
	// are running on.
	PlatformData any
}

// hasServiceUUID reports whether target is among a's service UUIDs; used by
// scanner filtering and by the merge logic below.
func (a *Advertisement) hasServiceUUID(target UUID) bool {
	for _, u := range a.ServiceUUIDs {
		if u == target {
			return true
		}
	}
	return false
}

// DiscoveredDevice is a peripheral seen during a scan session, with its
// merged advertisement state. It is owned exclusively by the Scanner that
// discovered it during the scan; once handed to Client.Connect, ownership
// is shared by handle.
type DiscoveredDevice struct {
	Identity DeviceIdentity

	// MostRecentAdvertisement is the merged view across every advertisement
	// event seen for this identity in the current scan session: newer
	// non-empty scalar fields overwrite older ones, ManufacturerData/
	// ServiceData are union-merged key by key, and RSSI / LastSeen always
	// reflect the most recent event.
	MostRecentAdvertisement Advertisement
	MostRecentRSSI          int16

	FirstSeen time.Time
	LastSeen  time.Time
}

// merge folds a freshly-received advertisement event into d and returns
// the just-received (unmerged) advertisement, which the caller uses to
// invoke the detection callback before publishing the merged device.
func (d *DiscoveredDevice) merge(incoming Advertisement, seenAt time.Time) Advertisement {
	if d.FirstSeen.IsZero() {
		d.FirstSeen = seenAt
	}
	d.LastSeen = seenAt
	d.MostRecentRSSI = incoming.RSSI

	merged := &d.MostRecentAdvertisement
	merged.RSSI = incoming.RSSI

	if incoming.HasName {
		merged.LocalName = incoming.LocalName
		merged.HasName = true
	}
	if incoming.HasTXPower {
		merged.TXPower = incoming.TXPower
		merged.HasTXPower = true
	}
	if incoming.PlatformData != nil {
		merged.PlatformData = incoming.PlatformData
	}

	for _, u := range incoming.ServiceUUIDs {
		if !merged.hasServiceUUID(u) {
			merged.ServiceUUIDs = append(merged.ServiceUUIDs, u)
		}
	}

	if len(incoming.ManufacturerData) > 0 {
		if merged.ManufacturerData == nil {
			merged.ManufacturerData = make(map[CompanyID][]byte, len(incoming.ManufacturerData))
		}
		for company, data := range incoming.ManufacturerData {
			merged.ManufacturerData[company] = data
		}
	}

	if len(incoming.ServiceData) > 0 {
		if merged.ServiceData == nil {
			merged.ServiceData = make(map[UUID][]byte, len(incoming.ServiceData))
		}
		for svc, data := range incoming.ServiceData {
			merged.ServiceData[svc] = data
		}
	}

	return incoming
}
