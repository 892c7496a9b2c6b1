package bluetooth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MAC is a 48-bit Bluetooth device address, stored little-endian (MAC[0] is
// the least significant octet), matching how BlueZ and the Windows
// Bluetooth LE APIs both hand addresses to this package.
type MAC [6]byte

var errInvalidMAC = errors.New("bluetooth: failed to parse MAC address")

// ParseMAC parses a colon-separated address such as "11:22:33:AA:BB:CC".
func ParseMAC(s string) (MAC, error) {
	var mac MAC
	if len(s) != len("11:22:33:AA:BB:CC") {
		return MAC{}, errInvalidMAC
	}
	var octets [6]string
	n, err := fmt.Sscanf(s, "%2s:%2s:%2s:%2s:%2s:%2s",
		&octets[0], &octets[1], &octets[2], &octets[3], &octets[4], &octets[5])
	if err != nil || n != 6 {
		return MAC{}, errInvalidMAC
	}
	for i, octet := range octets {
		b, err := parseHexByte(octet)
		if err != nil {
			return MAC{}, errInvalidMAC
		}
		// octets arrive most-significant-first in the string but MAC is
		// stored least-significant-first.
		mac[5-i] = b
	}
	return mac, nil
}

func parseHexByte(s string) (byte, error) {
	if len(s) != 2 {
		return 0, errInvalidMAC
	}
	hi, err := parseHexNibble(s[0])
	if err != nil {
		return 0, err
	}
	lo, err := parseHexNibble(s[1])
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}

func parseHexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, nil
	default:
		return 0, errInvalidMAC
	}
}

// String formats the address as "11:22:33:AA:BB:CC", most significant
// octet first.
func (mac MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		mac[5], mac[4], mac[3], mac[2], mac[1], mac[0])
}

// AddressType distinguishes a public (IEEE-assigned) Bluetooth address from
// a random one, as reported by BlueZ and WinRT. It has no meaning on
// backends that identify devices by platform UUID instead (see
// DeviceIdentity).
type AddressType int

const (
	AddressTypePublic AddressType = iota
	AddressTypeRandom
)

// DeviceIdentity identifies a peripheral for the duration of one host's
// Bluetooth session. Its representation differs by backend:
//
//   - Linux and Windows identify a peripheral by its 48-bit Bluetooth
//     device address plus an address-type tag.
//   - macOS assigns each peripheral a 128-bit UUID that is stable only for
//     the lifetime of the current host's CoreBluetooth cache; it has no
//     relation to the peripheral's real Bluetooth address and no meaning
//     on any other host.
//
// DeviceIdentity is deliberately opaque: two identities should only ever be
// compared with Equal, never by inspecting which form they hold, since a
// caller cannot know in general whether it is running on a platform that
// uses addresses or platform UUIDs.
type DeviceIdentity struct {
	// canonical is a string unique within the identity's own kind: a
	// colon-separated MAC address, or a dashed platform UUID.
	canonical string
	// raw holds the original bytes where the backend provided them (the
	// 6-byte MAC, or the 16-byte platform UUID); nil if unavailable.
	raw []byte

	isAddress   bool
	addressType AddressType
}

// NewMACIdentity builds a DeviceIdentity from a Bluetooth device address,
// as used on Linux and Windows.
func NewMACIdentity(mac MAC, addrType AddressType) DeviceIdentity {
	raw := make([]byte, 6)
	copy(raw, mac[:])
	return DeviceIdentity{
		canonical:   mac.String(),
		raw:         raw,
		isAddress:   true,
		addressType: addrType,
	}
}

// NewPlatformIdentity builds a DeviceIdentity from an OS-assigned UUID, as
// used on macOS. If id is the empty string, a new random identity is
// minted (used when a backend needs to synthesize a stable per-session
// handle for a peripheral it cannot otherwise name).
func NewPlatformIdentity(id string) DeviceIdentity {
	if id == "" {
		id = uuid.New().String()
	}
	parsed, err := uuid.Parse(id)
	var raw []byte
	if err == nil {
		b := parsed
		raw = b[:]
	}
	return DeviceIdentity{canonical: id, raw: raw}
}

// String returns the canonical textual form of the identity: a MAC address
// on Linux/Windows, a platform UUID on macOS.
func (d DeviceIdentity) String() string {
	return d.canonical
}

// IsAddress reports whether this identity is a Bluetooth device address
// (true on Linux/Windows) as opposed to an opaque platform UUID (macOS).
func (d DeviceIdentity) IsAddress() bool {
	return d.isAddress
}

// AddressType returns the address type for an address-form identity. It is
// meaningless (and returns AddressTypePublic) for platform-UUID identities.
func (d DeviceIdentity) AddressType() AddressType {
	return d.addressType
}

// Bytes returns the identity's original bytes, if the backend provided
// them, or nil otherwise.
func (d DeviceIdentity) Bytes() []byte {
	return d.raw
}

// Equal compares two identities by their canonical string form. This
// package never equates a platform UUID with a Bluetooth address even if
// constructed from similar-looking bytes; only identities produced by the
// same backend kind can compare equal.
func (d DeviceIdentity) Equal(other DeviceIdentity) bool {
	return d.isAddress == other.isAddress && d.canonical == other.canonical
}

func (d DeviceIdentity) IsZero() bool {
	return d.canonical == ""
}
