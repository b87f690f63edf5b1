package ingest

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Outcome of a handled message.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDropped = "dropped"
)

// Stats counts handled messages per command and outcome.
type Stats struct {
	mu       sync.RWMutex
	counters map[Command]*commandCounters
}

type commandCounters struct {
	success atomic.Uint64
	failure atomic.Uint64
	dropped atomic.Uint64
}

// CommandStats is a point-in-time copy of one command's counters.
type CommandStats struct {
	Command string `json:"command"`
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
	Dropped uint64 `json:"dropped"`
}

// NewStats creates an empty counter set.
func NewStats() *Stats {
	return &Stats{counters: make(map[Command]*commandCounters)}
}

// unknownCommand groups every command without a handler so arbitrary
// traffic cannot grow the counter map.
const unknownCommand Command = "unknown"

// record counts one message. A nil ack means the message was dropped.
func (s *Stats) record(command Command, ack *Acknowledgement) {
	if _, ok := handlers[command]; !ok {
		command = unknownCommand
	}
	c := s.counter(command)
	switch {
	case ack == nil:
		c.dropped.Add(1)
	case ack.Success:
		c.success.Add(1)
	default:
		c.failure.Add(1)
	}
}

func (s *Stats) counter(command Command) *commandCounters {
	s.mu.RLock()
	c, ok := s.counters[command]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[command]; !ok {
		c = &commandCounters{}
		s.counters[command] = c
	}
	return c
}

// Snapshot returns the counters sorted by command.
func (s *Stats) Snapshot() []CommandStats {
	s.mu.RLock()
	out := make([]CommandStats, 0, len(s.counters))
	for cmd, c := range s.counters {
		out = append(out, CommandStats{
			Command: string(cmd),
			Success: c.success.Load(),
			Failure: c.failure.Load(),
			Dropped: c.dropped.Load(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Total returns the number of messages seen across all commands.
func (s *Stats) Total() uint64 {
	var total uint64
	for _, c := range s.Snapshot() {
		total += c.Success + c.Failure + c.Dropped
	}
	return total
}
