package creator

import (
	"github.com/google/btree"

	"github.com/yairfalse/birthmark/pkg/resource"
)

// Display bounds for detail entries.
const (
	DefaultNameWidth = 30
	DefaultIDWidth   = 30
)

// Aggregator groups descriptors of every kind by normalized creator.
type Aggregator struct {
	nameWidth int
	idWidth   int
}

// NewAggregator creates an Aggregator. Widths below 4 use the defaults.
func NewAggregator(nameWidth, idWidth int) *Aggregator {
	if nameWidth < 4 {
		nameWidth = DefaultNameWidth
	}
	if idWidth < 4 {
		idWidth = DefaultIDWidth
	}
	return &Aggregator{nameWidth: nameWidth, idWidth: idWidth}
}

// ranked orders groups by total descending, then creator ascending.
func ranked(a, b *resource.CreatorGroup) bool {
	if a.TotalResources != b.TotalResources {
		return a.TotalResources > b.TotalResources
	}
	return a.Creator < b.Creator
}

// Aggregate rebuilds creator statistics from scratch. Kinds absent from
// byKind (failed or not requested) simply contribute nothing.
func (g *Aggregator) Aggregate(byKind map[resource.Kind][]resource.Descriptor) []resource.CreatorGroup {
	groups := make(map[string]*resource.CreatorGroup)
	for kind, descriptors := range byKind {
		for _, d := range descriptors {
			name := Normalize(d.Creator)
			group, ok := groups[name]
			if !ok {
				group = &resource.CreatorGroup{
					Creator: name,
					Details: make(map[resource.Kind][]resource.DetailEntry),
				}
				groups[name] = group
			}

			display := d.Name
			if display == "" {
				display = d.ID
			}
			group.Details[kind] = append(group.Details[kind], resource.DetailEntry{
				Name: Truncate(display, g.nameWidth),
				ID:   Truncate(d.ID, g.idWidth),
			})
			group.TotalResources++
		}
	}

	index := btree.NewG[*resource.CreatorGroup](8, ranked)
	for _, group := range groups {
		group.ResourceKindCount = len(group.Details)
		index.ReplaceOrInsert(group)
	}

	out := make([]resource.CreatorGroup, 0, index.Len())
	index.Ascend(func(group *resource.CreatorGroup) bool {
		out = append(out, *group)
		return true
	})
	return out
}

// Aggregate uses the default display widths.
func Aggregate(byKind map[resource.Kind][]resource.Descriptor) []resource.CreatorGroup {
	return NewAggregator(DefaultNameWidth, DefaultIDWidth).Aggregate(byKind)
}
