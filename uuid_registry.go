package bluetooth

// Curated subset of the Bluetooth SIG's assigned numbers, seeded at init so
// Description works out of the box for common peripherals (heart rate
// monitor, device information, battery).

// Well-known service UUIDs: 16-bit SIG-assigned ones, plus the 128-bit
// Nordic UART vendor UUID.
var (
	ServiceUUIDGenericAccess        = New16BitUUID(0x1800)
	ServiceUUIDGenericAttribute     = New16BitUUID(0x1801)
	ServiceUUIDImmediateAlert       = New16BitUUID(0x1802)
	ServiceUUIDDeviceInformation    = New16BitUUID(0x180A)
	ServiceUUIDHeartRate            = New16BitUUID(0x180D)
	ServiceUUIDBattery              = New16BitUUID(0x180F)
	ServiceUUIDNordicUART           = mustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
)

// Well-known 16-bit characteristic UUIDs.
var (
	CharacteristicUUIDDeviceName          = New16BitUUID(0x2A00)
	CharacteristicUUIDAppearance          = New16BitUUID(0x2A01)
	CharacteristicUUIDManufacturerName    = New16BitUUID(0x2A29)
	CharacteristicUUIDModelNumber         = New16BitUUID(0x2A24)
	CharacteristicUUIDSerialNumber        = New16BitUUID(0x2A25)
	CharacteristicUUIDFirmwareRevision    = New16BitUUID(0x2A26)
	CharacteristicUUIDHeartRateMeasurement = New16BitUUID(0x2A37)
	CharacteristicUUIDBodySensorLocation  = New16BitUUID(0x2A38)
	CharacteristicUUIDBatteryLevel        = New16BitUUID(0x2A19)
)

// Descriptor UUIDs.
var (
	DescriptorUUIDCharacteristicExtendedProperties = New16BitUUID(0x2900)
	DescriptorUUIDCharacteristicUserDescription    = New16BitUUID(0x2901)
	DescriptorUUIDClientCharacteristicConfig       = New16BitUUID(0x2902)
	DescriptorUUIDServerCharacteristicConfig       = New16BitUUID(0x2903)
)

// CompanyID identifies a Bluetooth SIG-assigned manufacturer, as carried in
// an Advertisement's ManufacturerData map keys.
type CompanyID uint16

// A small set of company identifiers commonly seen in manufacturer data.
const (
	CompanyIDEricsson     CompanyID = 0x0000
	CompanyIDAppleInc     CompanyID = 0x004C
	CompanyIDNordicSemi   CompanyID = 0x0059
	CompanyIDMicrosoft    CompanyID = 0x0006
	CompanyIDGoogleInc    CompanyID = 0x00E0
)

func mustParseUUID(s string) UUID {
	uuid, err := ParseUUID(s)
	if err != nil {
		panic("bluetooth: invalid UUID literal: " + s)
	}
	return uuid
}

func init() {
	RegisterUUIDs(map[UUID]string{
		ServiceUUIDGenericAccess:     "Generic Access",
		ServiceUUIDGenericAttribute:  "Generic Attribute",
		ServiceUUIDImmediateAlert:    "Immediate Alert",
		ServiceUUIDDeviceInformation: "Device Information",
		ServiceUUIDHeartRate:         "Heart Rate",
		ServiceUUIDBattery:           "Battery Service",
		ServiceUUIDNordicUART:        "Nordic UART Service",

		CharacteristicUUIDDeviceName:           "Device Name",
		CharacteristicUUIDAppearance:           "Appearance",
		CharacteristicUUIDManufacturerName:     "Manufacturer Name String",
		CharacteristicUUIDModelNumber:          "Model Number String",
		CharacteristicUUIDSerialNumber:         "Serial Number String",
		CharacteristicUUIDFirmwareRevision:     "Firmware Revision String",
		CharacteristicUUIDHeartRateMeasurement: "Heart Rate Measurement",
		CharacteristicUUIDBodySensorLocation:   "Body Sensor Location",
		CharacteristicUUIDBatteryLevel:         "Battery Level",

		DescriptorUUIDCharacteristicExtendedProperties: "Characteristic Extended Properties",
		DescriptorUUIDCharacteristicUserDescription:    "Characteristic User Description",
		DescriptorUUIDClientCharacteristicConfig:       "Client Characteristic Configuration",
		DescriptorUUIDServerCharacteristicConfig:        "Server Characteristic Configuration",
	})
}
