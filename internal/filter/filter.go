// Package filter selects which kinds are reconciled and which descriptors are reported.
package filter

import (
	"fmt"

	"github.com/grafana/regexp"

	"github.com/yairfalse/birthmark/internal/creator"
	"github.com/yairfalse/birthmark/pkg/resource"
)

// Filter excludes kinds from reconciliation and creators from reports.
// A nil Filter includes everything.
type Filter struct {
	excludeKinds    map[resource.Kind]bool
	excludeCreators []*regexp.Regexp
}

// New creates a Filter. excludeCreators are regular expressions matched
// against the normalized creator name.
func New(excludeKinds, excludeCreators []string) (*Filter, error) {
	kinds := make(map[resource.Kind]bool, len(excludeKinds))
	for _, k := range excludeKinds {
		kinds[resource.Kind(k)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(excludeCreators))
	for _, expr := range excludeCreators {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid creator pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}

	return &Filter{excludeKinds: kinds, excludeCreators: patterns}, nil
}

// ShouldReconcile returns true if kind is not excluded.
func (f *Filter) ShouldReconcile(kind resource.Kind) bool {
	return f == nil || !f.excludeKinds[kind]
}

// ShouldInclude returns true if d's creator matches no exclusion.
func (f *Filter) ShouldInclude(d resource.Descriptor) bool {
	if f == nil || len(f.excludeCreators) == 0 {
		return true
	}
	name := creator.Normalize(d.Creator)
	for _, re := range f.excludeCreators {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

// FilterDescriptors returns only descriptors that pass the filter.
func (f *Filter) FilterDescriptors(descriptors []resource.Descriptor) []resource.Descriptor {
	if f == nil || len(f.excludeCreators) == 0 {
		return descriptors
	}

	filtered := make([]resource.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if f.ShouldInclude(d) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.excludeKinds) == 0 && len(f.excludeCreators) == 0)
}
