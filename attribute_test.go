package bluetooth

import "testing"

func sampleRawServices() []RawService {
	hrs := New16BitUUID(0x180D)
	hrm := New16BitUUID(0x2A37)
	bodySensor := New16BitUUID(0x2A38)
	battery := New16BitUUID(0x180F)
	batteryLevel := New16BitUUID(0x2A19)

	return []RawService{
		{
			UUID:   hrs,
			Handle: 1,
			Characteristics: []RawCharacteristic{
				{UUID: hrm, Handle: 2, ValueHandle: 3, Properties: CharPropNotify},
				{UUID: bodySensor, Handle: 4, ValueHandle: 5, Properties: CharPropRead},
			},
		},
		{
			UUID:   battery,
			Handle: 6,
			Characteristics: []RawCharacteristic{
				{
					UUID: batteryLevel, Handle: 7, ValueHandle: 8, Properties: CharPropRead | CharPropNotify,
					Descriptors: []RawDescriptor{{UUID: New16BitUUID(0x2904), Handle: 9}},
				},
			},
		},
	}
}

func TestBuildAttributeTableIndexesEveryHandle(t *testing.T) {
	table := buildAttributeTable(sampleRawServices(), 23, 1)

	for _, h := range []uint16{2, 3, 4, 5, 7, 8} {
		if _, err := table.resolveCharacteristic(ByHandle(h)); err != nil {
			t.Errorf("expected handle %d to resolve, got error %v", h, err)
		}
	}
	if _, err := table.resolveDescriptor(9); err != nil {
		t.Errorf("expected descriptor handle 9 to resolve, got %v", err)
	}
}

func TestResolveCharacteristicByUUIDUnambiguous(t *testing.T) {
	table := buildAttributeTable(sampleRawServices(), 23, 1)
	ch, err := table.GetCharacteristic(ByUUID(New16BitUUID(0x2A37)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Handle() != 2 {
		t.Errorf("expected handle 2, got %d", ch.Handle())
	}
}

func TestResolveCharacteristicByUUIDAmbiguous(t *testing.T) {
	dup := New16BitUUID(0x2A19)
	raw := []RawService{
		{
			UUID:   New16BitUUID(0x180F),
			Handle: 1,
			Characteristics: []RawCharacteristic{
				{UUID: dup, Handle: 2, ValueHandle: 3, Properties: CharPropRead},
				{UUID: dup, Handle: 4, ValueHandle: 5, Properties: CharPropRead},
			},
		},
	}
	table := buildAttributeTable(raw, 23, 1)
	_, err := table.GetCharacteristic(ByUUID(dup))
	if err != ErrAmbiguous {
		t.Fatalf("expected ErrAmbiguous for a UUID shared by two characteristics, got %v", err)
	}
}

func TestResolveCharacteristicUnknownHandle(t *testing.T) {
	table := buildAttributeTable(sampleRawServices(), 23, 1)
	_, err := table.GetCharacteristic(ByHandle(999))
	if err != ErrAttributeNotFound {
		t.Fatalf("expected ErrAttributeNotFound, got %v", err)
	}
}

func TestResolveCharacteristicStaleObjectAcrossReconnect(t *testing.T) {
	before := buildAttributeTable(sampleRawServices(), 23, 1)
	staleChar, err := before.GetCharacteristic(ByHandle(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := buildAttributeTable(sampleRawServices(), 23, 2)
	_, err = after.GetCharacteristic(ByCharacteristic(staleChar))
	if err == nil {
		t.Fatalf("expected a stale *Characteristic from a previous table's generation to fail to resolve")
	}
}

func TestMaxWriteWithoutResponseSizeTracksMTU(t *testing.T) {
	table := buildAttributeTable(sampleRawServices(), 23, 1)
	ch, err := table.GetCharacteristic(ByHandle(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ch.MaxWriteWithoutResponseSize(); got != 20 {
		t.Errorf("expected MTU-3 = 20 at MTU 23, got %d", got)
	}

	table.setMTU(185)
	ch, err = table.GetCharacteristic(ByHandle(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ch.MaxWriteWithoutResponseSize(); got != 182 {
		t.Errorf("expected MTU-3 = 182 after setMTU(185), got %d", got)
	}
}

func TestMaxWriteWithoutResponseSizeFloorsAtZero(t *testing.T) {
	table := buildAttributeTable(sampleRawServices(), 2, 1)
	ch, err := table.GetCharacteristic(ByHandle(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ch.MaxWriteWithoutResponseSize(); got != 0 {
		t.Errorf("expected 0 for an MTU below 3, got %d", got)
	}
}
