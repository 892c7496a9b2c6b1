package bluetooth

import (
	"context"
	"time"
)

// NotifyKind distinguishes a notify subscription (no peer acknowledgement)
// from an indicate subscription (acknowledged by the client stack). A
// Backend is responsible for picking indication transparently when a
// characteristic only supports indicate.
type NotifyKind int

const (
	NotifyKindNotify NotifyKind = iota
	NotifyKindIndicate
)

// CharProperties is the property bitset of a GATT characteristic.
type CharProperties uint8

const (
	CharPropBroadcast CharProperties = 1 << iota
	CharPropRead
	CharPropWriteWithoutResponse
	CharPropWrite
	CharPropNotify
	CharPropIndicate
	CharPropAuthenticatedSignedWrites
	CharPropExtendedProperties
)

func (p CharProperties) Has(flag CharProperties) bool { return p&flag != 0 }

// RawDescriptor, RawCharacteristic, and RawService are the attribute tree
// shape a Backend returns from DiscoverServices, before the Client wraps it
// into the public AttributeTable. Handles must be unique within one raw
// tree; the Client does not renumber them.
type RawDescriptor struct {
	UUID   UUID
	Handle uint16
}

type RawCharacteristic struct {
	UUID        UUID
	Handle      uint16
	ValueHandle uint16
	Properties  CharProperties
	Descriptors []RawDescriptor
}

type RawService struct {
	UUID            UUID
	Handle          uint16
	Characteristics []RawCharacteristic
}

// ScanFilters configures what a Backend's ScanStart implements in-process
// versus passes through to the OS; higher layers (Scanner) apply whatever
// the backend does not.
type ScanFilters struct {
	ServiceUUIDs []UUID
	Active       bool // true = active scan (request scan responses)

	// PlatformSpecific is passed through unmodified to the backend (e.g. a
	// BlueZ discovery-filter map).
	PlatformSpecific map[string]any
}

// AdvertisementEvent is what a Backend's ScanStart callback delivers for
// each raw advertisement received. It intentionally carries no merge
// state: advertisement merging is Scanner-core's job, not the backend's.
type AdvertisementEvent struct {
	Identity      DeviceIdentity
	Advertisement Advertisement
}

// PairingAgent lets a caller participate interactively in OS-driven
// pairing (passkey entry, numeric comparison) instead of relying entirely
// on the platform's default pairing UI. A nil agent means "use the OS
// default"; not every backend supports every method.
type PairingAgent interface {
	// RequestPasskey is called when the peripheral requests a 6-digit
	// passkey be displayed or entered.
	RequestPasskey(ctx context.Context) (passkey uint32, err error)
	// RequestConfirmation is called for numeric-comparison pairing; the
	// agent should show passkey to the user and return whether they
	// confirmed it matches the peripheral's display.
	RequestConfirmation(ctx context.Context, passkey uint32) (confirmed bool, err error)
}

// Backend is the minimal contract every OS adapter satisfies. Higher
// layers (Scanner, Client) are written only against this
// interface and BackendConnection below; no code outside a *_linux.go,
// *_windows.go, or *_darwin.go file may depend on a concrete backend type.
//
// Implementations must marshal every callback onto the channel-based
// scheduler the caller supplies (never invoke it synchronously from an OS
// callback thread), must never hold a lock across a callback invocation,
// and must surface OS errors as a *Error, never as an opaque string.
// Implementations must not perform advertisement merging, must not cache
// discovered services across connections unless UseCached is requested,
// and must not silently retry on transport errors (that is Client-core's
// job; see retry.go).
type Backend interface {
	// ScanStart begins scanning; onEvent is invoked for every raw
	// advertisement or scan-response event, pre-deduplication, until
	// ScanStop is called. ScanStart must not return until scanning has
	// actually started (or failed to).
	ScanStart(filters ScanFilters, onEvent func(AdvertisementEvent)) error
	ScanStop() error

	// Connect establishes a GATT connection to identity, failing with
	// KindTimeout if timeout elapses first.
	Connect(ctx context.Context, identity DeviceIdentity, timeout time.Duration) (BackendConnection, error)
}

// BackendConnection is a live GATT connection to one peripheral.
type BackendConnection interface {
	// DiscoverServices resolves the full attribute tree. If useCached is
	// true and the OS maintains a services cache (BlueZ's
	// /var/lib/bluetooth cache), the backend may return it without
	// re-resolving; callers take on the staleness risk of a cached table
	// that no longer matches the peripheral's actual GATT database.
	DiscoverServices(ctx context.Context, useCached bool) ([]RawService, error)

	Read(ctx context.Context, handle uint16) ([]byte, error)
	Write(ctx context.Context, handle uint16, data []byte, withResponse bool) error

	// Subscribe starts delivering value-update events for handle to
	// onValue, marshalled onto the caller's scheduler. kind selects
	// notify vs. indicate; a backend that only supports one kind for a
	// given characteristic silently uses that one.
	Subscribe(ctx context.Context, handle uint16, kind NotifyKind, onValue func([]byte)) error
	Unsubscribe(ctx context.Context, handle uint16) error

	MTU() (uint16, error)

	Disconnect() error

	Pair(ctx context.Context, agent PairingAgent) error
	Unpair(ctx context.Context) error

	// SetDisconnectedCallback registers the callback invoked exactly once
	// when this connection transitions to disconnected, for any reason
	// (explicit Disconnect, peripheral-initiated drop, or backend error).
	// cause is nil for an explicit, successful Disconnect.
	SetDisconnectedCallback(cb func(cause error))
}
