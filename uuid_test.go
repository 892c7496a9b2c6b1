package bluetooth

import (
	"strings"
	"testing"
)

func TestUUIDString(t *testing.T) {
	checkUUID(t, New16BitUUID(0x1234), "00001234-0000-1000-8000-00805f9b34fb")
}

func checkUUID(t *testing.T, uuid UUID, check string) {
	if uuid.String() != check {
		t.Errorf("expected UUID %s but got %s", check, uuid.String())
	}
}

func TestParseUUIDTooSmall(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805f9b34f")
	if e != errInvalidUUID {
		t.Errorf("expected errInvalidUUID but got %v", e)
	}
}

func TestParseUUIDTooLarge(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805F9B34FB0")
	if e != errInvalidUUID {
		t.Errorf("expected errInvalidUUID but got %v", e)
	}
}

func TestStringUUID(t *testing.T) {
	uuidString := "00001234-0000-1000-8000-00805f9b34fb"
	u, e := ParseUUID(uuidString)
	if e != nil {
		t.Errorf("expected nil but got %v", e)
	}
	if u.String() != uuidString {
		t.Errorf("expected %s but got %s", uuidString, u.String())
	}
}

func TestStringUUIDUpperCase(t *testing.T) {
	uuidString := strings.ToUpper("00001234-0000-1000-8000-00805f9b34fb")
	u, e := ParseUUID(uuidString)
	if e != nil {
		t.Errorf("expected nil but got %v", e)
	}
	if !strings.EqualFold(u.String(), uuidString) {
		t.Errorf("%s does not match %s ignoring case", uuidString, u.String())
	}
}

func TestUUIDEqualAcrossForms(t *testing.T) {
	short := New16BitUUID(0x180D)
	long, err := ParseUUID("0000180d-0000-1000-8000-00805f9b34fb")
	if err != nil {
		t.Fatal(err)
	}
	if !short.Equal(long) {
		t.Errorf("16-bit and 128-bit forms of the same UUID should be equal")
	}
	if short != long {
		t.Errorf("16-bit and 128-bit forms of the same UUID should compare == equal")
	}
}

func TestUUIDIs16Bit(t *testing.T) {
	if !New16BitUUID(0x180D).Is16Bit() {
		t.Errorf("expected New16BitUUID result to be Is16Bit")
	}
	if New32BitUUID(0x12345678).Is16Bit() {
		t.Errorf("32-bit UUID with a high word set should not be Is16Bit")
	}
	if !New32BitUUID(0x12345678).Is32Bit() {
		t.Errorf("expected New32BitUUID result to be Is32Bit")
	}
}

func TestDescriptionRegistered(t *testing.T) {
	desc, ok := Description(ServiceUUIDHeartRate)
	if !ok || desc != "Heart Rate" {
		t.Errorf("expected registered description for Heart Rate, got %q, %v", desc, ok)
	}
}

func TestRegisterUUIDsOverride(t *testing.T) {
	u := New16BitUUID(0x1234)
	if _, ok := Description(u); ok {
		t.Fatalf("test UUID should not be pre-registered")
	}
	RegisterUUIDs(map[UUID]string{u: "custom sensor"})
	desc, ok := Description(u)
	if !ok || desc != "custom sensor" {
		t.Errorf("expected \"custom sensor\", got %q, %v", desc, ok)
	}
}

func BenchmarkUUIDToString(b *testing.B) {
	uuid, e := ParseUUID("00001234-0000-1000-8000-00805f9b34fb")
	if e != nil {
		b.Errorf("expected nil but got %v", e)
	}
	for i := 0; i < b.N; i++ {
		_ = uuid.String()
	}
}
