package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// kindsCmd represents the kinds command
var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List supported resource kinds",
	RunE:  runKinds,
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}

func runKinds(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out, err := renderKinds(a.service.Kinds())
	if err != nil {
		return err
	}
	pterm.Println(out)
	return nil
}
