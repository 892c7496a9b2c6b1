package bluetooth

import "testing"

func TestParseMACRoundTrip(t *testing.T) {
	addr := "11:22:33:AA:BB:CC"
	mac, err := ParseMAC(addr)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if mac.String() != addr {
		t.Errorf("expected %s, got %s", addr, mac.String())
	}
}

func TestParseMACLowerCase(t *testing.T) {
	mac, err := ParseMAC("11:22:33:aa:bb:cc")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if mac.String() != "11:22:33:AA:BB:CC" {
		t.Errorf("expected 11:22:33:AA:BB:CC, got %s", mac.String())
	}
}

func TestParseMACInvalid(t *testing.T) {
	cases := []string{
		"",
		"11:22:33:AA:BB",
		"11:22:33:AA:BB:CC:DD",
		"GG:22:33:AA:BB:CC",
		"112233AABBCC",
	}
	for _, c := range cases {
		if _, err := ParseMAC(c); err != errInvalidMAC {
			t.Errorf("ParseMAC(%q): expected errInvalidMAC, got %v", c, err)
		}
	}
}

func TestMACByteOrder(t *testing.T) {
	mac := MAC{0xCC, 0xBB, 0xAA, 0x33, 0x22, 0x11}
	if mac.String() != "11:22:33:AA:BB:CC" {
		t.Errorf("expected 11:22:33:AA:BB:CC, got %s", mac.String())
	}
}

func TestDeviceIdentityEqual(t *testing.T) {
	a := NewMACIdentity(MAC{0xCC, 0xBB, 0xAA, 0x33, 0x22, 0x11}, AddressTypePublic)
	b := NewMACIdentity(MAC{0xCC, 0xBB, 0xAA, 0x33, 0x22, 0x11}, AddressTypeRandom)
	if !a.Equal(b) {
		t.Errorf("identities built from the same address should compare equal regardless of address type")
	}

	platform := NewPlatformIdentity("")
	if a.Equal(platform) {
		t.Errorf("an address identity must never equal a platform-UUID identity")
	}
}

func TestDeviceIdentityIsZero(t *testing.T) {
	var d DeviceIdentity
	if !d.IsZero() {
		t.Errorf("zero-value DeviceIdentity should report IsZero")
	}
	if NewPlatformIdentity("").IsZero() {
		t.Errorf("a minted platform identity should not report IsZero")
	}
}
