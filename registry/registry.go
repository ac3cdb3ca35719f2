// Package registry holds the in-memory sensor registry shared by the
// ingestion server (many concurrent readers) and the control-plane HTTP
// server (occasional single-writer register/deregister calls). Follows the
// IssuerKeyset shape: an RWMutex-guarded map with Lookup/Replace semantics,
// generalized to per-key insert/remove with conflict detection.
package registry

import (
	"sync"

	"github.com/abe-bb/sensor-telemetry/internal/fserrors"
)

// FieldType is the declared type of one field in a sensor's JSON body.
type FieldType string

const (
	FieldFloat   FieldType = "Float"
	FieldInteger FieldType = "Integer"
)

// SensorRecord is the full set of key material and schema metadata the
// ingestion path needs to decode frames from one sensor.
type SensorRecord struct {
	Name         string
	Fields       []string
	FieldTypes   []FieldType
	Key          [16]byte
	IV           [8]byte
	Interval     uint32
	DirectionBit bool
}

// Registry is the shared sensor registry. Zero value is not usable; use New.
type Registry struct {
	mu      sync.RWMutex
	sensors map[string]SensorRecord
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sensors: make(map[string]SensorRecord)}
}

// Register inserts rec. It fails with fserrors.CodeDuplicateSensor if a
// record with the same name already exists; the existing record is left
// untouched: at most one record per name, first writer wins under
// concurrent conflict.
func (r *Registry) Register(rec SensorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sensors[rec.Name]; exists {
		return fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageRegistry, fserrors.CodeDuplicateSensor, nil)
	}
	r.sensors[rec.Name] = rec
	return nil
}

// Deregister removes the record with the given name. It fails with
// fserrors.CodeMissingSensor if no such record exists.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sensors[name]; !exists {
		return fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageRegistry, fserrors.CodeMissingSensor, nil)
	}
	delete(r.sensors, name)
	return nil
}

// Lookup returns a copy of the record for name, so the caller can release
// the lock before doing any crypto work or I/O.
func (r *Registry) Lookup(name string) (SensorRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.sensors[name]
	return rec, ok
}

// Len reports the number of registered sensors. Intended for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sensors)
}
