package topology

import "time"

// Node is a single registrable row of the greenhouse hierarchy.
type Node interface {
	// Kind returns the node's hierarchy kind.
	Kind() Kind

	// Key returns the node's unique id, e.g. "BD_001".
	Key() string
}

// DeviceAttributes are the descriptive fields shared by every device kind.
type DeviceAttributes struct {
	DeviceType  string `json:"device_type"`
	IOType      string `json:"io_type"`
	DefaultUnit string `json:"default_unit"`
	Status      string `json:"status"`
}

// Greenhouse is the root of the hierarchy.
type Greenhouse struct {
	UniqueID    string `json:"greenhouse_unique_id"`
	Name        string `json:"greenhouse_name"`
	OwnerUserID int64  `json:"owner_user_id"`
	LocationID  int64  `json:"location_id"`
}

// GreenhouseDevice is a sensor or actuator attached directly to a greenhouse.
type GreenhouseDevice struct {
	UniqueID string `json:"greenhouse_device_unique_id"`
	Name     string `json:"greenhouse_device_name"`
	DeviceAttributes
	GreenhouseID int64 `json:"greenhouse_id"`
}

// Bay is a structural subdivision of a greenhouse.
type Bay struct {
	UniqueID     string `json:"bay_unique_id"`
	GreenhouseID int64  `json:"greenhouse_id"`
}

// BayDevice is a sensor or actuator attached to a bay.
type BayDevice struct {
	UniqueID string `json:"bay_device_unique_id"`
	Name     string `json:"bay_device_name"`
	DeviceAttributes
	BayID int64 `json:"bay_id"`
}

// BayLine is a grouping of devices within a bay.
type BayLine struct {
	UniqueID string `json:"bay_line_unique_id"`
	BayID    int64  `json:"bay_id"`
}

// BayLineDevice is a sensor or actuator attached to a bay line.
type BayLineDevice struct {
	UniqueID string `json:"bay_line_device_unique_id"`
	Name     string `json:"bay_line_device_name"`
	DeviceAttributes
	BayLineID int64 `json:"bay_line_id"`
}

// BayRack is a structural container within a bay.
type BayRack struct {
	UniqueID string `json:"bay_rack_unique_id"`
	BayID    int64  `json:"bay_id"`
}

func (Greenhouse) Kind() Kind       { return KindGreenhouse }
func (GreenhouseDevice) Kind() Kind { return KindGreenhouseDevice }
func (Bay) Kind() Kind              { return KindBay }
func (BayDevice) Kind() Kind        { return KindBayDevice }
func (BayLine) Kind() Kind          { return KindBayLine }
func (BayLineDevice) Kind() Kind    { return KindBayLineDevice }
func (BayRack) Kind() Kind          { return KindBayRack }

func (n Greenhouse) Key() string       { return n.UniqueID }
func (n GreenhouseDevice) Key() string { return n.UniqueID }
func (n Bay) Key() string              { return n.UniqueID }
func (n BayDevice) Key() string        { return n.UniqueID }
func (n BayLine) Key() string          { return n.UniqueID }
func (n BayLineDevice) Key() string    { return n.UniqueID }
func (n BayRack) Key() string          { return n.UniqueID }

// BayLineRegistration is a bay line with its devices.
type BayLineRegistration struct {
	BayLine
	Devices []BayLineDevice `json:"listOfBayLineDevices"`
}

// BayRegistration is a bay with everything nested under it.
//
// BayID is accepted for payload compatibility; children with a zero parent id
// inherit the bay's stored id instead.
type BayRegistration struct {
	Bay
	BayID   int64                 `json:"bay_id"`
	Devices []BayDevice           `json:"listOfBayDevices"`
	Lines   []BayLineRegistration `json:"listOfBayLines"`
	Racks   []BayRack             `json:"listOfBayRacks"`
}

// GreenhouseRegistration is a list of bay subtrees, optionally preceded by
// the greenhouse row itself when UniqueID is set.
type GreenhouseRegistration struct {
	Greenhouse
	Bays []BayRegistration `json:"listOfBays"`
}

// TelemetryRecord is one reading from a device. It is written once and never updated.
type TelemetryRecord struct {
	DeviceUniqueID string
	Value          string
	Unit           string
	ReceivedTime   time.Time
}
