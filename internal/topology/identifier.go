package topology

import (
	"context"
	"fmt"
	"strings"
)

// Identifier format constants.
const (
	segmentSeparator = ":"
	prefixSeparator  = "_"
)

// Segment is one PREFIX_LOCALID element of a component identifier.
type Segment struct {
	// Raw is the segment exactly as received; it is also the node's unique id.
	Raw     string
	Prefix  string
	LocalID string
	Kind    Kind
}

// Identifier is a parsed component identifier such as "G_001:B_001:BD_001".
type Identifier struct {
	Segments []Segment
}

// ParseIdentifier splits a component identifier into typed segments.
//
// Unknown prefixes are not a parse error: the segment is returned with
// KindUnknown and resolution treats it as unresolved.
func ParseIdentifier(s string) (Identifier, error) {
	if strings.TrimSpace(s) == "" {
		return Identifier{}, ErrEmptyIdentifier
	}

	parts := strings.Split(s, segmentSeparator)
	segments := make([]Segment, 0, len(parts))

	for _, part := range parts {
		prefix, localID, ok := strings.Cut(part, prefixSeparator)
		if !ok || prefix == "" || localID == "" {
			return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedSegment, part)
		}
		segments = append(segments, Segment{
			Raw:     part,
			Prefix:  prefix,
			LocalID: localID,
			Kind:    KindForPrefix(prefix),
		})
	}

	return Identifier{Segments: segments}, nil
}

// Terminal returns the last segment.
func (id Identifier) Terminal() Segment {
	return id.Segments[len(id.Segments)-1]
}

// UniqueID returns the last colon-delimited segment of an identifier verbatim.
// It performs no validation or existence check.
//
//	UniqueID("G_001:B_002:BD_010") // "BD_010"
func UniqueID(identifier string) string {
	if i := strings.LastIndex(identifier, segmentSeparator); i >= 0 {
		return identifier[i+1:]
	}
	return identifier
}

// ExistenceChecker is the slice of the Repository the resolver needs.
type ExistenceChecker interface {
	Exists(ctx context.Context, kind Kind, uniqueID string) (bool, error)
}

// Resolver maps telemetry identifiers to the device kind they address.
// It holds no per-call state and is safe for concurrent use.
type Resolver struct {
	store ExistenceChecker
}

// NewResolver creates a Resolver backed by the given existence checks.
func NewResolver(store ExistenceChecker) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks the identifier left to right and returns the device kind
// of its terminal segment.
//
// The result is Unresolved when the identifier is malformed, uses an unknown
// prefix, breaks the parent→child order, names a missing node, or ends in
// something that is not a device. Resolution stops at the first missing
// ancestor. A non-nil error means storage failed; the kind is then Unresolved.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (DeviceKind, error) {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return Unresolved, nil
	}

	last := len(id.Segments) - 1
	previous := KindUnknown

	for i, seg := range id.Segments {
		if seg.Kind == KindUnknown {
			return Unresolved, nil
		}
		if i > 0 && seg.Kind.Parent() != previous {
			return Unresolved, nil
		}
		if i < last && !seg.Kind.IsContainer() {
			return Unresolved, nil
		}
		if i == last && deviceKindOf(seg.Kind) == Unresolved {
			return Unresolved, nil
		}

		exists, err := r.store.Exists(ctx, seg.Kind, seg.Raw)
		if err != nil {
			return Unresolved, fmt.Errorf("resolving %s %s: %w", seg.Kind, seg.Raw, err)
		}
		if !exists {
			return Unresolved, nil
		}

		previous = seg.Kind
	}

	return deviceKindOf(id.Terminal().Kind), nil
}
