package topology

// Kind identifies a node type in the greenhouse hierarchy.
type Kind int

// Hierarchy node kinds.
const (
	KindUnknown Kind = iota
	KindGreenhouse
	KindGreenhouseDevice
	KindBay
	KindBayDevice
	KindBayLine
	KindBayLineDevice
	KindBayRack
)

// kindNames maps kinds to their log/display names.
var kindNames = map[Kind]string{
	KindGreenhouse:       "greenhouse",
	KindGreenhouseDevice: "greenhouse_device",
	KindBay:              "bay",
	KindBayDevice:        "bay_device",
	KindBayLine:          "bay_line",
	KindBayLineDevice:    "bay_line_device",
	KindBayRack:          "bay_rack",
}

// String returns the snake_case name of the kind, which is also its table name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// prefixKinds maps identifier segment prefixes to kinds.
// Racks are registered but never addressed by a telemetry identifier.
var prefixKinds = map[string]Kind{
	"G":   KindGreenhouse,
	"GD":  KindGreenhouseDevice,
	"B":   KindBay,
	"BD":  KindBayDevice,
	"BL":  KindBayLine,
	"BLD": KindBayLineDevice,
}

// KindForPrefix returns the kind for an identifier prefix, or KindUnknown.
func KindForPrefix(prefix string) Kind {
	return prefixKinds[prefix]
}

// parentKinds records the only valid parent of each kind.
var parentKinds = map[Kind]Kind{
	KindGreenhouseDevice: KindGreenhouse,
	KindBay:              KindGreenhouse,
	KindBayDevice:        KindBay,
	KindBayLine:          KindBay,
	KindBayLineDevice:    KindBayLine,
	KindBayRack:          KindBay,
}

// Parent returns the kind that directly contains k, or KindUnknown for roots.
func (k Kind) Parent() Kind {
	return parentKinds[k]
}

// IsContainer reports whether k may appear as an ancestor segment.
func (k Kind) IsContainer() bool {
	switch k {
	case KindGreenhouse, KindBay, KindBayLine:
		return true
	default:
		return false
	}
}

// DeviceKind is the outcome of resolving a telemetry identifier.
// Its numeric code is what devices and operators see in logs.
type DeviceKind int

// Resolution outcomes.
const (
	Unresolved           DeviceKind = -1
	DeviceKindGreenhouse DeviceKind = 1
	DeviceKindBay        DeviceKind = 2
	DeviceKindBayLine    DeviceKind = 3
)

// Code returns the numeric status for the outcome.
func (d DeviceKind) Code() int {
	return int(d)
}

// Resolved reports whether the identifier named an existing device.
func (d DeviceKind) Resolved() bool {
	return d > 0
}

// Kind returns the hierarchy kind of a resolved device.
func (d DeviceKind) Kind() Kind {
	switch d {
	case DeviceKindGreenhouse:
		return KindGreenhouseDevice
	case DeviceKindBay:
		return KindBayDevice
	case DeviceKindBayLine:
		return KindBayLineDevice
	default:
		return KindUnknown
	}
}

// String returns a readable name for the outcome.
func (d DeviceKind) String() string {
	if d.Resolved() {
		return d.Kind().String()
	}
	return "unresolved"
}

// deviceKindOf maps a hierarchy kind to its device outcome.
func deviceKindOf(k Kind) DeviceKind {
	switch k {
	case KindGreenhouseDevice:
		return DeviceKindGreenhouse
	case KindBayDevice:
		return DeviceKindBay
	case KindBayLineDevice:
		return DeviceKindBayLine
	default:
		return Unresolved
	}
}
