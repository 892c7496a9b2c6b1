package bluetooth

// This file implements the post-discovery attribute model: an immutable,
// handle-keyed tree of Services, Characteristics, and Descriptors built
// once per successful connection. Characteristics carry a service-handle
// index rather than a pointer back to their owning Service; the
// AttributeTable is the sole owner of every node in the tree.

// Descriptor is metadata attached to a Characteristic (e.g. the Client
// Characteristic Configuration Descriptor that enables notify/indicate).
type Descriptor struct {
	uuid   UUID
	handle uint16
}

func (d Descriptor) UUID() UUID     { return d.uuid }
func (d Descriptor) Handle() uint16 { return d.handle }

// Characteristic is an attribute with a value, a property bitset, and zero
// or more Descriptors.
type Characteristic struct {
	uuid          UUID
	handle        uint16
	valueHandle   uint16
	properties    CharProperties
	descriptors   []Descriptor
	serviceHandle uint16 // index into the owning AttributeTable, not a pointer

	mtu uint16 // cached from the connection's negotiated ATT MTU

	// generation ties this Characteristic to the AttributeTable that built
	// it, so a *Characteristic captured before a reconnect is rejected by
	// resolveCharacteristic even if the new table happens to reuse the same
	// handle and UUID.
	generation uint64
}

func (c Characteristic) UUID() UUID              { return c.uuid }
func (c Characteristic) Handle() uint16          { return c.handle }
func (c Characteristic) ValueHandle() uint16     { return c.valueHandle }
func (c Characteristic) Properties() CharProperties { return c.properties }
func (c Characteristic) Descriptors() []Descriptor  { return c.descriptors }

// MaxWriteWithoutResponseSize returns MTU-3, the usable ATT payload size
// for a write-without-response given the negotiated MTU.
func (c Characteristic) MaxWriteWithoutResponseSize() int {
	if c.mtu < 3 {
		return 0
	}
	return int(c.mtu) - 3
}

// Service is a primary GATT service, owning an ordered list of
// Characteristics.
type Service struct {
	uuid            UUID
	handle          uint16
	characteristics []Characteristic
}

func (s Service) UUID() UUID                       { return s.uuid }
func (s Service) Handle() uint16                   { return s.handle }
func (s Service) Characteristics() []Characteristic { return s.characteristics }

// CharSpec identifies a characteristic for a Client operation: by UUID (may
// be ambiguous), by exact handle, or by a previously resolved
// *Characteristic object. The zero value is invalid; use one of the
// constructors.
type CharSpec struct {
	kind   specKind
	uuid   UUID
	handle uint16
	char   *Characteristic
}

type specKind int

const (
	specByUUID specKind = iota
	specByHandle
	specByObject
)

func ByUUID(uuid UUID) CharSpec            { return CharSpec{kind: specByUUID, uuid: uuid} }
func ByHandle(handle uint16) CharSpec      { return CharSpec{kind: specByHandle, handle: handle} }
func ByCharacteristic(c *Characteristic) CharSpec {
	return CharSpec{kind: specByObject, char: c}
}

// AttributeTable is the immutable attribute database built once per
// successful connection. Handles are unique within one table; UUIDs are
// not.
type AttributeTable struct {
	services []Service

	byHandle        map[uint16]*Service
	charByHandle    map[uint16]*Characteristic
	descByHandle    map[uint16]*Descriptor
	charsByUUID     map[UUID][]*Characteristic
	servicesByUUID  map[UUID][]*Service

	mtu uint16

	// generation distinguishes AttributeTables across reconnects of the
	// same Client: a CharSpec captured before a disconnect/reconnect must
	// fail with a "stale handle" error rather than silently resolving
	// against the new table.
	generation uint64
}

// buildAttributeTable constructs an AttributeTable from a backend's raw
// attribute tree, assigning the given generation number and MTU.
func buildAttributeTable(raw []RawService, mtu uint16, generation uint64) *AttributeTable {
	t := &AttributeTable{
		byHandle:       make(map[uint16]*Service, len(raw)),
		charByHandle:   make(map[uint16]*Characteristic),
		descByHandle:   make(map[uint16]*Descriptor),
		charsByUUID:    make(map[UUID][]*Characteristic),
		servicesByUUID: make(map[UUID][]*Service),
		mtu:            mtu,
		generation:     generation,
	}

	t.services = make([]Service, len(raw))
	for i, rs := range raw {
		svc := Service{uuid: rs.UUID, handle: rs.Handle}
		svc.characteristics = make([]Characteristic, len(rs.Characteristics))
		for j, rc := range rs.Characteristics {
			descs := make([]Descriptor, len(rc.Descriptors))
			for k, rd := range rc.Descriptors {
				descs[k] = Descriptor{uuid: rd.UUID, handle: rd.Handle}
			}
			svc.characteristics[j] = Characteristic{
				uuid:          rc.UUID,
				handle:        rc.Handle,
				valueHandle:   rc.ValueHandle,
				properties:    rc.Properties,
				descriptors:   descs,
				serviceHandle: rs.Handle,
				mtu:           mtu,
				generation:    generation,
			}
		}
		t.services[i] = svc
	}

	// Index after construction so pointers are stable (t.services is never
	// reallocated again).
	for i := range t.services {
		svc := &t.services[i]
		t.byHandle[svc.handle] = svc
		t.servicesByUUID[svc.uuid] = append(t.servicesByUUID[svc.uuid], svc)
		for j := range svc.characteristics {
			ch := &svc.characteristics[j]
			t.charByHandle[ch.handle] = ch
			t.charByHandle[ch.valueHandle] = ch
			t.charsByUUID[ch.uuid] = append(t.charsByUUID[ch.uuid], ch)
			for k := range ch.descriptors {
				d := &ch.descriptors[k]
				t.descByHandle[d.handle] = d
			}
		}
	}

	return t
}

// Services returns the ordered list of primary services.
func (t *AttributeTable) Services() []Service {
	return t.services
}

// GetService looks up a service by UUID, returning the first match. Use
// GetServiceByHandle to look one up by handle.
func (t *AttributeTable) GetService(uuid UUID) (*Service, error) {
	matches := t.servicesByUUID[uuid]
	if len(matches) == 0 {
		return nil, ErrAttributeNotFound
	}
	return matches[0], nil
}

func (t *AttributeTable) GetServiceByHandle(handle uint16) (*Service, error) {
	svc, ok := t.byHandle[handle]
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return svc, nil
}

// resolveCharacteristic implements the CharSpec lookup contract: exact by
// handle or object, first-match-or-ambiguous-error by UUID.
func (t *AttributeTable) resolveCharacteristic(spec CharSpec) (*Characteristic, error) {
	switch spec.kind {
	case specByHandle:
		ch, ok := t.charByHandle[spec.handle]
		if !ok {
			return nil, ErrAttributeNotFound
		}
		return ch, nil
	case specByObject:
		if spec.char == nil {
			return nil, ErrInvalidArgument
		}
		// Confirm the object still belongs to this table (not stale across
		// a reconnect): look it up by handle and require the same UUID and
		// the same table generation.
		ch, ok := t.charByHandle[spec.char.handle]
		if !ok || ch.uuid != spec.char.uuid || spec.char.generation != t.generation {
			return nil, wrapError(KindInvalidArgument, "stale characteristic handle from a previous connection", nil)
		}
		return ch, nil
	case specByUUID:
		matches := t.charsByUUID[spec.uuid]
		if len(matches) == 0 {
			return nil, ErrAttributeNotFound
		}
		if len(matches) > 1 {
			return nil, ErrAmbiguous
		}
		return matches[0], nil
	default:
		return nil, ErrInvalidArgument
	}
}

func (t *AttributeTable) resolveDescriptor(handle uint16) (*Descriptor, error) {
	d, ok := t.descByHandle[handle]
	if !ok {
		return nil, ErrAttributeNotFound
	}
	return d, nil
}

// GetCharacteristic resolves spec against this table: by UUID (first
// match, or KindAmbiguous if more than one characteristic shares it), by
// exact handle, or by a previously resolved object.
func (t *AttributeTable) GetCharacteristic(spec CharSpec) (*Characteristic, error) {
	return t.resolveCharacteristic(spec)
}

// GetDescriptor resolves a descriptor by its exact handle.
func (t *AttributeTable) GetDescriptor(handle uint16) (*Descriptor, error) {
	return t.resolveDescriptor(handle)
}

// setMTU updates the cached MTU on the table and every characteristic it
// owns, so MaxWriteWithoutResponseSize reflects a post-connect MTU
// negotiation without a backend round-trip on every call.
func (t *AttributeTable) setMTU(mtu uint16) {
	t.mtu = mtu
	for i := range t.services {
		for j := range t.services[i].characteristics {
			t.services[i].characteristics[j].mtu = mtu
		}
	}
}

// handles returns every handle known to this table (services,
// characteristic and value handles, descriptors), as a debug accessor.
func (t *AttributeTable) handles() []uint16 {
	out := make([]uint16, 0, len(t.charByHandle)+len(t.descByHandle))
	for h := range t.byHandle {
		out = append(out, h)
	}
	for h := range t.charByHandle {
		out = append(out, h)
	}
	for h := range t.descByHandle {
		out = append(out, h)
	}
	return out
}
