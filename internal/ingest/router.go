package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aigrow/aigrow-device-server/internal/topology"
)

// Logger is the logging surface the Router needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TelemetrySink receives a copy of every stored reading.
// Implementations must not block; the InfluxDB writer batches asynchronously.
type TelemetrySink interface {
	WriteTelemetry(kind topology.DeviceKind, rec topology.TelemetryRecord)
}

// errStorage marks failures of the relational store during data entry.
var errStorage = errors.New("storage failure")

type handlerFunc func(r *Router, ctx context.Context, payload []byte) *Acknowledgement

// handlers is the dispatch table keyed on the envelope command.
var handlers = map[Command]handlerFunc{
	CommandDataEntry:                (*Router).handleDataEntry,
	CommandRegisterGreenhouse:       (*Router).handleRegisterGreenhouse,
	CommandRegisterGreenhouseDevice: (*Router).handleRegisterGreenhouseDevice,
	CommandRegisterBay:              (*Router).handleRegisterBay,
	CommandRegisterBayLine:          (*Router).handleRegisterBayLine,
	CommandRegisterBayLineDevice:    (*Router).handleRegisterBayLineDevice,
	CommandRegisterBayDevice:        (*Router).handleRegisterBayDevice,
	CommandRegisterBayRack:          (*Router).handleRegisterBayRack,
}

// Router decodes inbound envelopes, dispatches them to the topology
// services and turns every outcome into an Acknowledgement.
//
// Router keeps no per-message state and is safe for concurrent use.
type Router struct {
	repo      topology.Repository
	resolver  *topology.Resolver
	registrar *topology.Registrar
	stats     *Stats
	now       func() time.Time

	sink   TelemetrySink
	logger Logger
	mu     sync.RWMutex
}

// NewRouter creates a Router over a repository.
func NewRouter(repo topology.Repository) *Router {
	return &Router{
		repo:      repo,
		resolver:  topology.NewResolver(repo),
		registrar: topology.NewRegistrar(repo),
		stats:     NewStats(),
		now:       time.Now,
	}
}

// SetLogger sets the logger for the router and its registrar.
func (r *Router) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
	r.registrar.SetLogger(logger)
}

// SetTelemetrySink mirrors stored readings to sink. Pass nil to disable.
func (r *Router) SetTelemetrySink(sink TelemetrySink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Stats returns the router's message counters.
func (r *Router) Stats() *Stats {
	return r.stats
}

// Handle processes one inbound payload.
//
// It returns nil when no acknowledgement should be published, which is the
// case for envelopes without a command or with an unknown one. Every other
// outcome, including a panic inside a handler, yields an acknowledgement.
func (r *Router) Handle(ctx context.Context, payload []byte) (ack *Acknowledgement) {
	var command Command
	defer func() {
		if rec := recover(); rec != nil {
			r.logError(ctx, "panic while handling message", "command", string(command), "panic", fmt.Sprint(rec))
			ack = unhandled(fmt.Errorf("panic: %v", rec))
		}
		r.stats.record(command, ack)
	}()

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logWarn(ctx, "invalid envelope", "error", err)
		return unhandled(fmt.Errorf("decoding envelope: %w", err))
	}
	command = env.command()

	handler, ok := handlers[command]
	if !ok {
		r.logDebug(ctx, "dropping message", "command", string(command))
		return nil
	}
	return handler(r, ctx, payload)
}

func (r *Router) handleDataEntry(ctx context.Context, payload []byte) *Acknowledgement {
	var msg dataEntryPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding dataEntry: %w", err))
	}

	kind, err := r.resolver.Resolve(ctx, msg.DeviceID)
	if err != nil {
		r.logError(ctx, "resolving device failed", "device_id", msg.DeviceID, "error", err)
		return failed(ErrCodeUnhandled, errStorage.Error(), err, "")
	}
	if !kind.Resolved() {
		r.logDebug(ctx, "unknown component", "device_id", msg.DeviceID)
		return failed(ErrCodeUnknownComponent, "unknown component", nil, "")
	}

	rec := topology.TelemetryRecord{
		DeviceUniqueID: topology.UniqueID(msg.DeviceID),
		Value:          string(msg.Data),
		Unit:           msg.DataUnit,
		ReceivedTime:   r.now(),
	}
	if err := r.repo.InsertTelemetry(ctx, kind, rec); err != nil {
		r.logError(ctx, "storing telemetry failed", "device_id", msg.DeviceID, "error", err)
		return failed(ErrCodeUnhandled, errStorage.Error(), err, "")
	}

	if sink := r.getSink(); sink != nil {
		sink.WriteTelemetry(kind, rec)
	}
	return succeeded("data stored", rec.DeviceUniqueID)
}

func (r *Router) handleRegisterGreenhouse(ctx context.Context, payload []byte) *Acknowledgement {
	var msg greenhousePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerGreenhouse: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterGreenhouse(ctx, msg))
}

func (r *Router) handleRegisterGreenhouseDevice(ctx context.Context, payload []byte) *Acknowledgement {
	var msg greenhouseDevicePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerGreenhouseDevice: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterGreenhouseDevice(ctx, msg))
}

func (r *Router) handleRegisterBay(ctx context.Context, payload []byte) *Acknowledgement {
	var msg bayPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerBay: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterBay(ctx, msg))
}

func (r *Router) handleRegisterBayLine(ctx context.Context, payload []byte) *Acknowledgement {
	var msg bayLinePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerBayLine: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterBayLine(ctx, msg))
}

func (r *Router) handleRegisterBayLineDevice(ctx context.Context, payload []byte) *Acknowledgement {
	var msg bayLineDevicePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerBayLineDevice: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterBayLineDevice(ctx, msg))
}

func (r *Router) handleRegisterBayDevice(ctx context.Context, payload []byte) *Acknowledgement {
	var msg bayDevicePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerBayDevice: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterBayDevice(ctx, msg))
}

func (r *Router) handleRegisterBayRack(ctx context.Context, payload []byte) *Acknowledgement {
	var msg bayRackPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return unhandled(fmt.Errorf("decoding registerBayRack: %w", err))
	}
	return r.registration(ctx, msg.UniqueID, r.registrar.RegisterBayRack(ctx, msg))
}

// registration converts a registrar result into an acknowledgement.
func (r *Router) registration(ctx context.Context, uniqueID string, err error) *Acknowledgement {
	if err != nil {
		r.logWarn(ctx, "registration failed", "unique_id", uniqueID, "error", err)
		return failed(ErrCodeRegistration, "registration failed", err, uniqueID)
	}
	return succeeded("registered", uniqueID)
}

func (r *Router) getSink() TelemetrySink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink
}

func (r *Router) getLogger() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

func (r *Router) logDebug(ctx context.Context, msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Debug(msg, withMessageID(ctx, args)...)
	}
}

func (r *Router) logWarn(ctx context.Context, msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Warn(msg, withMessageID(ctx, args)...)
	}
}

func (r *Router) logError(ctx context.Context, msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Error(msg, withMessageID(ctx, args)...)
	}
}

// withMessageID prepends the message id carried by ctx, if any, to args.
func withMessageID(ctx context.Context, args []any) []any {
	id := MessageID(ctx)
	if id == "" {
		return args
	}
	return append([]any{"message_id", id}, args...)
}
