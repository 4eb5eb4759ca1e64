// Package resource defines the unified data model for birthmark.
package resource

import (
	"fmt"
	"time"
)

// StateDeleted is reported when an audited resource has no live counterpart.
const StateDeleted = "deleted"

// UnknownCreator replaces an empty creator identity before grouping.
const UnknownCreator = "unknown"

// Kind tags a category of resource (e.g. "ec2", "rds").
type Kind string

// TimeWindow bounds an audit-log query. Start must not be after End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow validates and returns a window.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate rejects missing or inverted bounds.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if w.Start.After(w.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// LiveResource is one entry of a kind's current inventory.
type LiveResource struct {
	ID     string            `json:"id"`     // Identity key, comparable with the audit side
	Name   string            `json:"name"`   // Human-readable name, may be empty
	Status string            `json:"status"` // Provider status string (e.g. "running")
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Descriptor is one audited resource joined with its live state.
type Descriptor struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreationTime string `json:"creationTime"`
	Creator      string `json:"creator"`
	State        string `json:"state"`
}

// Deleted reports whether no live resource matched.
func (d Descriptor) Deleted() bool {
	return d.State == StateDeleted
}

// DetailEntry is one resource listed under a creator group.
type DetailEntry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// CreatorGroup aggregates descriptors of every kind by normalized creator.
type CreatorGroup struct {
	Creator           string                 `json:"creator"`
	TotalResources    int                    `json:"totalResources"`
	ResourceKindCount int                    `json:"resourceTypes"`
	Details           map[Kind][]DetailEntry `json:"details"`
}

// Outcome is the per-kind result of a reconciliation.
type Outcome struct {
	Kind        Kind          `json:"kind"`
	Descriptors []Descriptor  `json:"resources,omitempty"`
	Err         error         `json:"-"`
	Category    Category      `json:"errorCategory,omitempty"`
	Message     string        `json:"error,omitempty"`
	Duration    time.Duration `json:"durationNs"`
}

// Succeeded reports whether the kind reconciled without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// DeleteResult is the response of a best-effort delete action.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
