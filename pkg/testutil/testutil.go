// Package testutil provides testing utilities for spawnpool
package testutil

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObservedLogger creates a logger whose entries can be inspected by the test.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// Template is a minimal pool template.
type Template struct {
	Name string
}

// Entity is the in-memory entity created by RecordingHost.
type Entity struct {
	Serial   int
	Template string
	Name     string
	Scope    string
	Active   bool
	Rotation float64
	Scale    float64
	Resets   int
}

// RecordingHost is an in-memory pool host that records what the pool did to
// each entity.
type RecordingHost struct {
	Entities []*Entity
	// ResetLog holds entity names in ResetTransform call order.
	ResetLog []string
}

// NewRecordingHost returns an empty host.
func NewRecordingHost() *RecordingHost {
	return &RecordingHost{}
}

// Templates builds templates from names.
func Templates(names ...string) []Template {
	out := make([]Template, len(names))
	for i, n := range names {
		out[i] = Template{Name: n}
	}
	return out
}

// Instantiate creates an active entity, like an engine clone would.
func (h *RecordingHost) Instantiate(t Template, scope string) *Entity {
	e := &Entity{
		Serial:   len(h.Entities),
		Template: t.Name,
		Name:     t.Name + "(Clone)",
		Scope:    scope,
		Active:   true,
		Scale:    1,
	}
	h.Entities = append(h.Entities, e)
	return e
}

// TemplateName returns the template name.
func (h *RecordingHost) TemplateName(t Template) string { return t.Name }

// SetName renames e.
func (h *RecordingHost) SetName(e *Entity, name string) { e.Name = name }

// SetActive enables or disables e.
func (h *RecordingHost) SetActive(e *Entity, active bool) { e.Active = active }

// ResetTransform restores identity rotation and unit scale.
func (h *RecordingHost) ResetTransform(e *Entity, scope string) {
	e.Rotation = 0
	e.Scale = 1
	e.Scope = scope
	e.Resets++
	h.ResetLog = append(h.ResetLog, e.Name)
}

// CountActive returns the number of enabled entities.
func (h *RecordingHost) CountActive() int {
	n := 0
	for _, e := range h.Entities {
		if e.Active {
			n++
		}
	}
	return n
}

// CountingObserver tallies pool events per pool label.
type CountingObserver struct {
	Creates     map[string]int
	Checkouts   map[string]int
	Emergencies map[string]int
	Returns     map[string]int
	Rejects     map[string]int
}

// NewCountingObserver returns an observer with empty tallies.
func NewCountingObserver() *CountingObserver {
	return &CountingObserver{
		Creates:     map[string]int{},
		Checkouts:   map[string]int{},
		Emergencies: map[string]int{},
		Returns:     map[string]int{},
		Rejects:     map[string]int{},
	}
}

func (o *CountingObserver) Created(pool string, _ int) { o.Creates[pool]++ }

func (o *CountingObserver) CheckedOut(pool string, _ int, emergency bool) {
	o.Checkouts[pool]++
	if emergency {
		o.Emergencies[pool]++
	}
}

func (o *CountingObserver) Returned(pool string, _ int) { o.Returns[pool]++ }

func (o *CountingObserver) Rejected(pool string) { o.Rejects[pool]++ }
