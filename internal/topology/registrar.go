package topology

import (
	"context"
	"fmt"
	"sync"
)

// Logger is the logging surface the Registrar needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Registrar performs idempotent registration of hierarchy subtrees.
//
// Every node is checked for existence before it is inserted; an existing
// node is skipped and registration continues. The first failure aborts the
// operation. Rows already written stay written.
//
// Registrar holds no per-request state and is safe for concurrent use.
type Registrar struct {
	repo Repository

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRegistrar creates a Registrar on top of a repository.
func NewRegistrar(repo Repository) *Registrar {
	return &Registrar{repo: repo}
}

// SetLogger sets a logger for registration progress.
func (r *Registrar) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// RegisterGreenhouse registers the greenhouse row (when UniqueID is set)
// and then every bay subtree in order.
func (r *Registrar) RegisterGreenhouse(ctx context.Context, reg GreenhouseRegistration) error {
	var parent *parentRef
	if reg.UniqueID != "" {
		if err := r.ensure(ctx, reg.Greenhouse); err != nil {
			return registrationError(err)
		}
		parent = &parentRef{kind: KindGreenhouse, key: reg.UniqueID}
	}

	for _, bay := range reg.Bays {
		if bay.GreenhouseID == 0 && parent != nil {
			id, err := parent.resolve(ctx, r.repo)
			if err != nil {
				return registrationError(err)
			}
			bay.GreenhouseID = id
		}
		if err := r.registerBay(ctx, bay); err != nil {
			return registrationError(err)
		}
	}
	return nil
}

// RegisterBay registers a bay, then its devices, then each line followed by
// the line's devices, then its racks.
func (r *Registrar) RegisterBay(ctx context.Context, reg BayRegistration) error {
	if err := r.registerBay(ctx, reg); err != nil {
		return registrationError(err)
	}
	return nil
}

// RegisterBayLine registers a bay line followed by its devices.
func (r *Registrar) RegisterBayLine(ctx context.Context, reg BayLineRegistration) error {
	if err := r.registerBayLine(ctx, reg); err != nil {
		return registrationError(err)
	}
	return nil
}

// RegisterBayRack registers a single rack.
func (r *Registrar) RegisterBayRack(ctx context.Context, rack BayRack) error {
	return r.registerLeaf(ctx, rack)
}

// RegisterBayDevice registers a single bay device.
func (r *Registrar) RegisterBayDevice(ctx context.Context, device BayDevice) error {
	return r.registerLeaf(ctx, device)
}

// RegisterBayLineDevice registers a single bay-line device.
func (r *Registrar) RegisterBayLineDevice(ctx context.Context, device BayLineDevice) error {
	return r.registerLeaf(ctx, device)
}

// RegisterGreenhouseDevice registers a single greenhouse device.
func (r *Registrar) RegisterGreenhouseDevice(ctx context.Context, device GreenhouseDevice) error {
	return r.registerLeaf(ctx, device)
}

func (r *Registrar) registerLeaf(ctx context.Context, node Node) error {
	if err := r.ensure(ctx, node); err != nil {
		return registrationError(err)
	}
	return nil
}

func (r *Registrar) registerBay(ctx context.Context, reg BayRegistration) error {
	if err := r.ensure(ctx, reg.Bay); err != nil {
		return err
	}
	bay := &parentRef{kind: KindBay, key: reg.UniqueID}

	for _, device := range reg.Devices {
		if device.BayID == 0 {
			id, err := bay.resolve(ctx, r.repo)
			if err != nil {
				return err
			}
			device.BayID = id
		}
		if err := r.ensure(ctx, device); err != nil {
			return err
		}
	}

	for _, line := range reg.Lines {
		if line.BayID == 0 {
			id, err := bay.resolve(ctx, r.repo)
			if err != nil {
				return err
			}
			line.BayID = id
		}
		if err := r.registerBayLine(ctx, line); err != nil {
			return err
		}
	}

	for _, rack := range reg.Racks {
		if rack.BayID == 0 {
			id, err := bay.resolve(ctx, r.repo)
			if err != nil {
				return err
			}
			rack.BayID = id
		}
		if err := r.ensure(ctx, rack); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registrar) registerBayLine(ctx context.Context, reg BayLineRegistration) error {
	if err := r.ensure(ctx, reg.BayLine); err != nil {
		return err
	}
	line := &parentRef{kind: KindBayLine, key: reg.UniqueID}

	for _, device := range reg.Devices {
		if device.BayLineID == 0 {
			id, err := line.resolve(ctx, r.repo)
			if err != nil {
				return err
			}
			device.BayLineID = id
		}
		if err := r.ensure(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

// ensure inserts node unless a node with the same unique id already exists.
func (r *Registrar) ensure(ctx context.Context, node Node) error {
	key := node.Key()
	if key == "" {
		return fmt.Errorf("%w: %s has no unique id", ErrInvalidNode, node.Kind())
	}

	exists, err := r.repo.Exists(ctx, node.Kind(), key)
	if err != nil {
		return fmt.Errorf("checking %s %s: %w", node.Kind(), key, err)
	}
	if exists {
		r.logDebug("node already registered", "kind", node.Kind().String(), "unique_id", key)
		return nil
	}

	inserted, err := r.repo.Insert(ctx, node)
	if err != nil {
		return fmt.Errorf("inserting %s %s: %w", node.Kind(), key, err)
	}
	if !inserted {
		// Another delivery of the same message won the race.
		r.logDebug("node inserted concurrently", "kind", node.Kind().String(), "unique_id", key)
		return nil
	}

	r.logInfo("node registered", "kind", node.Kind().String(), "unique_id", key)
	return nil
}

// parentRef lazily resolves the stored id of a parent node, at most once
// per registration call.
type parentRef struct {
	kind Kind
	key  string
	id   int64
}

func (p *parentRef) resolve(ctx context.Context, repo Repository) (int64, error) {
	if p.id != 0 {
		return p.id, nil
	}
	id, err := repo.LookupID(ctx, p.kind, p.key)
	if err != nil {
		return 0, fmt.Errorf("resolving parent %s %s: %w", p.kind, p.key, err)
	}
	p.id = id
	return id, nil
}

func registrationError(err error) error {
	return fmt.Errorf("%w: %w", ErrRegistration, err)
}

func (r *Registrar) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Registrar) logDebug(msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Debug(msg, args...)
	}
}

func (r *Registrar) logInfo(msg string, args ...any) {
	if logger := r.getLogger(); logger != nil {
		logger.Info(msg, args...)
	}
}
