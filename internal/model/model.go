package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrPrecondition marks a state transition attempted before the data it
// depends on was collected, or with mismatched data. The model is left
// unchanged when a setter returns it.
var ErrPrecondition = errors.New("precondition violated")

// Model is the complete application state: the lifecycle stage, the
// account key being tracked and the captures collected so far. It is
// owned by the controller and mutated only on the host loop goroutine.
// Setters return an immutable copy taken at transition time; handing that
// copy to a persistence task decouples save latency from later mutations.
type Model struct {
	path string

	state  State
	key    APIKey
	start  *Snapshot
	end    *Snapshot
	report *Report
}

// modelFile is the serialized form written to the state file.
type modelFile struct {
	State  State     `json:"state"`
	Key    APIKey    `json:"key"`
	Start  *Snapshot `json:"start_snapshot,omitempty"`
	End    *Snapshot `json:"end_snapshot,omitempty"`
	Report *Report   `json:"report,omitempty"`
}

// New returns a fresh model that saves itself to path.
func New(path string) *Model {
	return &Model{path: path}
}

// Load reads a model previously saved to path. On any error the caller
// should fall back to New: a missing or unreadable state file means
// tracking starts over, never a crash.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("state file inconsistent: %w", err)
	}
	return &Model{
		path:   path,
		state:  f.State,
		key:    f.Key,
		start:  f.Start,
		end:    f.End,
		report: f.Report,
	}, nil
}

func (f modelFile) validate() error {
	switch {
	case f.State < Started || f.State > ReportSet:
		return fmt.Errorf("unknown state %d", int(f.State))
	case f.State >= KeySet && f.Key == "":
		return errors.New("state beyond started but no key")
	case f.State >= StartSnapshotSet && f.Start == nil:
		return errors.New("state beyond key but no start snapshot")
	case f.State >= EndSnapshotSet && f.End == nil:
		return errors.New("state beyond start but no end snapshot")
	case f.State >= ReportSet && f.Report == nil:
		return errors.New("state beyond end but no report")
	}
	return nil
}

// State returns the current lifecycle stage.
func (m *Model) State() State { return m.state }

// Key returns the account key being tracked, empty before any was set.
func (m *Model) Key() APIKey { return m.key }

// StartSnapshot returns the reference capture, if one was taken.
func (m *Model) StartSnapshot() (Snapshot, bool) {
	if m.start == nil {
		return Snapshot{}, false
	}
	return *m.start, true
}

// EndSnapshot returns the closing capture, if one was taken.
func (m *Model) EndSnapshot() (Snapshot, bool) {
	if m.end == nil {
		return Snapshot{}, false
	}
	return *m.end, true
}

// Report returns the computed report, if one was accepted.
func (m *Model) Report() (Report, bool) {
	if m.report == nil {
		return Report{}, false
	}
	return *m.report, true
}

// SetKey makes key the tracked account. Switching to a different key
// discards the snapshots and report of the previous one; re-setting the
// current key keeps them. The key is assumed already validated.
func (m *Model) SetKey(key APIKey) Model {
	if key != m.key {
		m.state = KeySet
		m.key = key
		m.start = nil
		m.end = nil
		m.report = nil
	}
	return m.copy()
}

// SetStartSnapshot stores the reference capture. It requires a key, and
// the capture must belong to it. Any previously captured end snapshot and
// report are stale afterwards and are discarded.
func (m *Model) SetStartSnapshot(s Snapshot) (Model, error) {
	if m.state < KeySet {
		return Model{}, fmt.Errorf("set start snapshot without a key: %w", ErrPrecondition)
	}
	if s.Key != m.key {
		return Model{}, fmt.Errorf("snapshot key does not match the tracked key: %w", ErrPrecondition)
	}
	m.start = &s
	m.state = StartSnapshotSet
	m.end = nil
	m.report = nil
	return m.copy(), nil
}

// SetEndSnapshot stores the closing capture. It requires a start snapshot,
// and the capture must belong to the tracked key.
func (m *Model) SetEndSnapshot(s Snapshot) (Model, error) {
	if m.state < StartSnapshotSet {
		return Model{}, fmt.Errorf("set end snapshot without a start snapshot: %w", ErrPrecondition)
	}
	if s.Key != m.key {
		return Model{}, fmt.Errorf("snapshot key does not match the tracked key: %w", ErrPrecondition)
	}
	m.end = &s
	m.state = EndSnapshotSet
	return m.copy(), nil
}

// SetReport stores the computed report. It requires an end snapshot.
func (m *Model) SetReport(r Report) (Model, error) {
	if m.state < EndSnapshotSet {
		return Model{}, fmt.Errorf("set report without an end snapshot: %w", ErrPrecondition)
	}
	m.report = &r
	m.state = ReportSet
	return m.copy(), nil
}

// copy returns a value copy of the model. The shallow copy is safe: all
// referenced data is immutable and setters replace pointers, never write
// through them.
func (m *Model) copy() Model { return *m }

// Save writes the model to its state file. It runs on the copies returned
// by setters, so a save in flight never observes later mutations. The
// write goes through a temp file so a crash cannot truncate saved state.
func (m Model) Save(ctx context.Context) error {
	data, err := json.MarshalIndent(modelFile{
		State:  m.state,
		Key:    m.key,
		Start:  m.start,
		End:    m.end,
		Report: m.report,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
