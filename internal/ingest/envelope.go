package ingest

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/aigrow/aigrow-device-server/internal/topology"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Command is the discriminator carried in every inbound envelope.
type Command string

// Supported commands.
const (
	CommandDataEntry                Command = "dataEntry"
	CommandRegisterGreenhouse       Command = "registerGreenhouse"
	CommandRegisterGreenhouseDevice Command = "registerGreenhouseDevice"
	CommandRegisterBay              Command = "registerBay"
	CommandRegisterBayLine          Command = "registerBayLine"
	CommandRegisterBayLineDevice    Command = "registerBayLineDevice"
	CommandRegisterBayDevice        Command = "registerBayDevice"
	CommandRegisterBayRack          Command = "registerBayRack"
)

// envelope holds only the discriminator; handlers decode their own shape.
// The command is kept raw so that a non-string value is treated like an
// unknown command rather than a malformed message.
type envelope struct {
	Command jsoniter.RawMessage `json:"command"`
}

// command returns the discriminator, or "" when it is absent or not a string.
func (e envelope) command() Command {
	var s string
	if len(e.Command) == 0 || json.Unmarshal(e.Command, &s) != nil {
		return ""
	}
	return Command(s)
}

// dataEntryPayload is a single sensor reading.
type dataEntryPayload struct {
	DeviceID string  `json:"deviceID"`
	Data     reading `json:"data"`
	DataUnit string  `json:"data_unit"`
}

// reading accepts a JSON string or a bare number and keeps its text form.
// Firmware differs on whether it quotes values.
type reading string

func (r *reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = reading(s)
		return nil
	default:
		var n jsoniter.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("data must be a string or number: %w", err)
		}
		*r = reading(n.String())
		return nil
	}
}

// Registration payloads reuse the topology types, whose JSON tags match the wire format.
type (
	greenhousePayload       = topology.GreenhouseRegistration
	greenhouseDevicePayload = topology.GreenhouseDevice
	bayPayload              = topology.BayRegistration
	bayLinePayload          = topology.BayLineRegistration
	bayLineDevicePayload    = topology.BayLineDevice
	bayDevicePayload        = topology.BayDevice
	bayRackPayload          = topology.BayRack
)
