package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/yairfalse/birthmark/internal/service"
	"github.com/yairfalse/birthmark/pkg/resource"
)

var (
	reportStart     string
	reportEnd       string
	reportKinds     string
	reportResources bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report resources by creator for a time window",
	Long: `Reconcile every requested kind over a time window and rank creators
by how many resources they created. Kinds that fail are listed with their
error category; the ranking covers the kinds that succeeded.`,
	Example: `  birthmark report --start 2024-03-01 --end 2024-03-31
  birthmark report --kinds ec2,rds --resources
  birthmark report --start 2024-03-01T00:00:00Z --end 2024-03-02T00:00:00Z`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportStart, "start", "", "Window start, YYYY-MM-DD or RFC3339 (default: 7 days ago)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "Window end, YYYY-MM-DD or RFC3339 (default: today)")
	reportCmd.Flags().StringVarP(&reportKinds, "kinds", "k", "", "Comma-separated kinds (default: config query.kinds, else all)")
	reportCmd.Flags().BoolVar(&reportResources, "resources", false, "Also list every resource per kind")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	start, end := defaultDates(time.Now().In(loc), reportStart, reportEnd)
	window, err := service.ParseWindow(start, end, loc)
	if err != nil {
		return err
	}

	kinds := splitKinds(reportKinds)
	if len(kinds) == 0 {
		kinds = splitKinds(strings.Join(cfg.Query.Kinds, ","))
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Reconciling %s to %s", start, end))
	report, err := a.service.Report(cmd.Context(), window, kinds)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	out, err := renderReport(report, loc, reportResources)
	if err != nil {
		return err
	}
	pterm.Println(out)
	return nil
}

// defaultDates fills a missing window bound: seven days back and today.
func defaultDates(now time.Time, start, end string) (string, string) {
	if start == "" {
		start = now.AddDate(0, 0, -7).Format(time.DateOnly)
	}
	if end == "" {
		end = now.Format(time.DateOnly)
	}
	return start, end
}

func splitKinds(csv string) []resource.Kind {
	var kinds []resource.Kind
	for _, k := range strings.Split(csv, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, resource.Kind(k))
		}
	}
	return kinds
}
