package ingest

// ErrorCode classifies a failed acknowledgement.
type ErrorCode string

// Acknowledgement error codes, as seen by devices.
const (
	// ErrCodeUnknownComponent means the deviceID did not resolve to an existing device.
	ErrCodeUnknownComponent ErrorCode = "UnknownComponent"

	// ErrCodeRegistration means a step of a registration failed.
	ErrCodeRegistration ErrorCode = "RegistrationError"

	// ErrCodeUnhandled means the message could not be decoded or processing
	// failed unexpectedly.
	ErrCodeUnhandled ErrorCode = "UnhandledError"
)

// Acknowledgement is the response published for every handled message.
type Acknowledgement struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	ErrorCode    ErrorCode `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	DeviceID     string    `json:"deviceID,omitempty"`
}

func succeeded(message, deviceID string) *Acknowledgement {
	return &Acknowledgement{
		Success:  true,
		Message:  message,
		DeviceID: deviceID,
	}
}

func failed(code ErrorCode, message string, err error, deviceID string) *Acknowledgement {
	ack := &Acknowledgement{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		DeviceID:  deviceID,
	}
	if err != nil {
		ack.ErrorMessage = err.Error()
	}
	return ack
}

// unhandled is the generic reply for anything that escaped a handler.
func unhandled(err error) *Acknowledgement {
	return failed(ErrCodeUnhandled, "unknown error", err, "")
}
