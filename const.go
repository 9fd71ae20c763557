package gatt

// This file includes the services and characteristics the host talks to.

var (
	// SMPServiceUUID is the mcumgr Simple Management Protocol service.
	SMPServiceUUID = MustParseUUID("8d53dc1d-1db7-4cd3-868b-8a527460aa84")
	// SMPCharUUID is the single write/notify characteristic of the SMP service.
	SMPCharUUID = MustParseUUID("da2e7828-fbce-4e01-ae9e-261174997c48")

	// StateServiceUUID carries the live front panel state of the device.
	StateServiceUUID = MustParseUUID("1a9f2b31-1c1a-4ef0-9fb2-6a5e26c03db9")
	// StateCharUUID notifies state records.
	StateCharUUID = MustParseUUID("1a9f2b32-1c1a-4ef0-9fb2-6a5e26c03db9")

	BatteryServiceUUID   = UUID16(0x180F)
	BatteryLevelCharUUID = UUID16(0x2A19)

	DeviceInfoServiceUUID = UUID16(0x180A)
	ManufacturerNameUUID  = UUID16(0x2A29)
	ModelNumberUUID       = UUID16(0x2A24)
	SerialNumberUUID      = UUID16(0x2A25)
	HardwareRevisionUUID  = UUID16(0x2A27)
	FirmwareRevisionUUID  = UUID16(0x2A26)
	SoftwareRevisionUUID  = UUID16(0x2A28)
)
