package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/EngSayh/backsync/internal/analytics"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the tracked backlog",
	Long: `Report computes backlog analytics over the store: counts per
dimension, a health score, quick wins, stale issues, a file heat map,
and dimension anomalies between the two most recent import runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := newEngine(store).Report(ctx)
		if err != nil {
			return fmt.Errorf("failed to compute report: %w", err)
		}

		switch reportFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(report)
		case "text":
			renderReport(report)
			return nil
		default:
			return fmt.Errorf("unknown format %q (want text, json, or yaml)", reportFormat)
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "output format (text, json, yaml)")
	rootCmd.AddCommand(reportCmd)
}

func renderReport(r *analytics.Report) {
	bold := color.New(color.Bold)
	bold.Printf("Backlog: %d issue(s)\n", r.TotalIssues)
	fmt.Printf("Health score: %s\n", healthColor(r.HealthScore).Sprintf("%.1f", r.HealthScore))

	printCounts("By priority", r.ByPriority)
	printCounts("By status", r.ByStatus)
	printCounts("By category", r.ByCategory)
	printCounts("By effort", r.ByEffort)

	if len(r.QuickWins) > 0 {
		bold.Println("\nQuick wins:")
		for _, is := range r.QuickWins {
			fmt.Printf("  %s  [%s/%s]  %s\n", is.Key, is.Priority, is.Effort, is.Title)
		}
	}
	if len(r.Stale) > 0 {
		bold.Println("\nStale:")
		for _, is := range r.Stale {
			fmt.Printf("  %s  last seen %s  %s\n", is.Key, is.LastSeenAt.Format("2006-01-02"), is.Title)
		}
	}
	if len(r.HeatMap) > 0 {
		bold.Println("\nHot files:")
		for _, h := range r.HeatMap {
			fmt.Printf("  %3d  %s\n", h.Active, h.File)
		}
	}
	if len(r.Anomalies) > 0 {
		bold.Println("\nAnomalies since previous run:")
		for _, a := range r.Anomalies {
			fmt.Printf("  %s %q: %d -> %d (%+.0f%%)\n",
				a.Dimension, a.Value, a.Previous, a.Current, a.Change*100)
		}
	}
}

func printCounts(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:", label)
	for _, k := range keys {
		fmt.Printf("  %s=%d", k, counts[k])
	}
	fmt.Println()
}

func healthColor(score float64) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen)
	case score >= 50:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
