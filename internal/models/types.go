package models

import "strings"

// Asset element type ids, persisted in t_bios_asset_element_type.
const (
	TypeUnknown        uint16 = 0
	TypeGroup          uint16 = 1
	TypeDatacenter     uint16 = 2
	TypeRoom           uint16 = 3
	TypeRow            uint16 = 4
	TypeRack           uint16 = 5
	TypeDevice         uint16 = 6
	TypeInfraService   uint16 = 7
	TypeCluster        uint16 = 8
	TypeHypervisor     uint16 = 9
	TypeVirtualMachine uint16 = 10
)

// Device subtype ids, persisted in t_bios_asset_device_type.
const (
	SubtypeUnknown        uint16 = 0
	SubtypeUPS            uint16 = 1
	SubtypeGenset         uint16 = 2
	SubtypeEPDU           uint16 = 3
	SubtypePDU            uint16 = 4
	SubtypeServer         uint16 = 5
	SubtypeFeed           uint16 = 6
	SubtypeSTS            uint16 = 7
	SubtypeSwitch         uint16 = 8
	SubtypeStorage        uint16 = 9
	SubtypeVirtual        uint16 = 10
	SubtypeNA             uint16 = 11
	SubtypeRouter         uint16 = 12
	SubtypeRackController uint16 = 13
	SubtypeSensor         uint16 = 14
	SubtypeAppliance      uint16 = 15
	SubtypeChassis        uint16 = 16
	SubtypePatchPanel     uint16 = 17
	SubtypeOther          uint16 = 18
	SubtypeSensorGPIO     uint16 = 19
	SubtypeGPO            uint16 = 20
)

// LinkTypePowerChain is the only link type handled by the power topology.
const LinkTypePowerChain uint16 = 1

const (
	StatusActive    = "active"
	StatusNonactive = "nonactive"
)

var typeNames = map[uint16]string{
	TypeGroup:          "group",
	TypeDatacenter:     "datacenter",
	TypeRoom:           "room",
	TypeRow:            "row",
	TypeRack:           "rack",
	TypeDevice:         "device",
	TypeInfraService:   "infra-service",
	TypeCluster:        "cluster",
	TypeHypervisor:     "hypervisor",
	TypeVirtualMachine: "virtual-machine",
}

var subtypeNames = map[uint16]string{
	SubtypeUPS:            "ups",
	SubtypeGenset:         "genset",
	SubtypeEPDU:           "epdu",
	SubtypePDU:            "pdu",
	SubtypeServer:         "server",
	SubtypeFeed:           "feed",
	SubtypeSTS:            "sts",
	SubtypeSwitch:         "switch",
	SubtypeStorage:        "storage",
	SubtypeVirtual:        "virtual",
	SubtypeNA:             "N_A",
	SubtypeRouter:         "router",
	SubtypeRackController: "rackcontroller",
	SubtypeSensor:         "sensor",
	SubtypeAppliance:      "appliance",
	SubtypeChassis:        "chassis",
	SubtypePatchPanel:     "patchpanel",
	SubtypeOther:          "other",
	SubtypeSensorGPIO:     "sensorgpio",
	SubtypeGPO:            "gpo",
}

var (
	typeIDs    = invert(typeNames)
	subtypeIDs = invert(subtypeNames)
)

func invert(m map[uint16]string) map[string]uint16 {
	out := make(map[string]uint16, len(m))
	for id, name := range m {
		out[strings.ToLower(name)] = id
	}
	return out
}

// TypeName returns the short name of a type id, or "unknown".
func TypeName(id uint16) string {
	if n, ok := typeNames[id]; ok {
		return n
	}
	return "unknown"
}

// SubtypeName returns the short name of a subtype id, or "unknown".
func SubtypeName(id uint16) string {
	if n, ok := subtypeNames[id]; ok {
		return n
	}
	return "unknown"
}

// TypeID resolves a type name, case-insensitively. Unknown names yield TypeUnknown.
func TypeID(name string) uint16 {
	return typeIDs[strings.ToLower(strings.TrimSpace(name))]
}

// SubtypeID resolves a subtype name; "n_a", "na" and "" map to N_A.
func SubtypeID(name string) uint16 {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "na", "n/a":
		return SubtypeNA
	}
	return subtypeIDs[n]
}

// TypeNames lists every known type name.
func TypeNames() []string {
	out := make([]string, 0, len(typeNames))
	for _, n := range typeNames {
		out = append(out, n)
	}
	return out
}

// SubtypeNames lists every known subtype name.
func SubtypeNames() []string {
	out := make([]string, 0, len(subtypeNames))
	for _, n := range subtypeNames {
		out = append(out, n)
	}
	return out
}

// IsContainer reports whether assets of this type may hold children.
func IsContainer(typeID uint16) bool {
	switch typeID {
	case TypeDatacenter, TypeRoom, TypeRow, TypeRack:
		return true
	}
	return false
}

// IsPowerDevice reports whether a device subtype counts against the
// licensed maximum of active power devices.
func IsPowerDevice(subtypeID uint16) bool {
	switch subtypeID {
	case SubtypeUPS, SubtypeEPDU, SubtypePDU, SubtypeSTS, SubtypeGenset:
		return true
	}
	return false
}

// CanContain reports whether an asset of parentType may be parent of childType.
func CanContain(parentType, childType uint16) bool {
	if !IsContainer(parentType) {
		return false
	}
	if childType == TypeDatacenter || childType == TypeGroup {
		return false
	}
	if IsContainer(childType) {
		return childType > parentType
	}
	return true
}
