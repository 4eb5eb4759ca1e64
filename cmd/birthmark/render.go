package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"github.com/yairfalse/birthmark/internal/service"
	"github.com/yairfalse/birthmark/pkg/resource"
)

var (
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	boldRed    = color.New(color.FgRed, color.Bold).SprintFunc()
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	dimYellow  = color.New(color.FgYellow).SprintFunc()
	tableStyle = pterm.NewStyle(pterm.FgLightCyan)
)

func renderTable(data pterm.TableData) (string, error) {
	return pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(tableStyle).
		WithData(data).
		Srender()
}

// renderReport renders outcome status, the creator ranking and, when
// withResources is set, one table per successful kind.
func renderReport(r service.Report, loc *time.Location, withResources bool) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s .. %s\n\n", boldCyan("Window"),
		r.Window.Start.In(loc).Format(time.DateTime), r.Window.End.In(loc).Format(time.DateTime))

	status := pterm.TableData{{"Kind", "Status", "Resources", "Duration"}}
	for _, o := range r.Outcomes {
		state := boldGreen("ok")
		if o.Err != nil || o.Category != resource.CategoryNone {
			state = boldRed(string(o.Category))
		}
		status = append(status, []string{
			string(o.Kind), state, strconv.Itoa(len(o.Descriptors)), o.Duration.Round(time.Millisecond).String(),
		})
	}
	table, err := renderTable(status)
	if err != nil {
		return "", err
	}
	b.WriteString(table)
	b.WriteString("\n")

	if len(r.Creators) == 0 {
		b.WriteString(dimYellow("No resources created in this window"))
		b.WriteString("\n")
	} else {
		creators := pterm.TableData{{"Creator", "Total", "Kinds", "Resources"}}
		for _, g := range r.Creators {
			creators = append(creators, []string{
				g.Creator, strconv.Itoa(g.TotalResources), strconv.Itoa(g.ResourceKindCount), detailSummary(g.Details),
			})
		}
		if table, err = renderTable(creators); err != nil {
			return "", err
		}
		b.WriteString(table)
		b.WriteString("\n")
	}

	if !withResources {
		return b.String(), nil
	}
	for _, o := range r.Outcomes {
		if o.Err != nil || len(o.Descriptors) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", boldCyan(string(o.Kind)))
		rows := pterm.TableData{{"ID", "Name", "Created", "Creator", "State"}}
		for _, d := range o.Descriptors {
			state := d.State
			if d.Deleted() {
				state = boldRed(state)
			}
			rows = append(rows, []string{d.ID, d.Name, d.CreationTime, d.Creator, state})
		}
		if table, err = renderTable(rows); err != nil {
			return "", err
		}
		b.WriteString(table)
	}
	return b.String(), nil
}

// detailSummary lists kinds with their counts, kinds sorted.
func detailSummary(details map[resource.Kind][]resource.DetailEntry) string {
	kinds := make([]string, 0, len(details))
	for k := range details {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s:%d", k, len(details[resource.Kind(k)])))
	}
	return strings.Join(parts, " ")
}

func renderKinds(kinds []service.KindInfo) (string, error) {
	data := pterm.TableData{{"Kind", "Event", "Resource type", "Delete"}}
	for _, k := range kinds {
		del := ""
		if k.Deletable {
			del = "yes"
		}
		data = append(data, []string{string(k.Kind), k.EventName, k.ResourceType, del})
	}
	return renderTable(data)
}
