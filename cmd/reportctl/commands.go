package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahmetcoskunkizilkaya/report-intake/internal/dedup"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/models"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/output"
	"github.com/ahmetcoskunkizilkaya/report-intake/internal/services"
)

const descriptionWidth = 48

func newFingerprintCmd(e *env) *cobra.Command {
	var screen string
	cmd := &cobra.Command{
		Use:   "fingerprint <description>",
		Short: "Print the normalized text and fingerprint of a description",
		Long: `Computes the fingerprint a submission would get, without a database.
Useful to explain why two reports were or were not grouped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireApp(); err != nil {
				return err
			}
			description := strings.TrimSpace(args[0])
			fmt.Fprintf(e.ui.Out, "normalized:  %q\n", dedup.Normalize(description))
			fmt.Fprintf(e.ui.Out, "fingerprint: %s\n", dedup.Fingerprint(e.appID, description, screen))
			return nil
		},
	}
	cmd.Flags().StringVar(&screen, "screen", "", "Screen name the report was filed from")
	return cmd
}

func newListCmd(e *env) *cobra.Command {
	var in services.ListInput
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List canonical reports, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireApp(); err != nil {
				return err
			}
			queries, err := e.queries()
			if err != nil {
				return err
			}
			in.AppID = e.appID
			page, err := queries.List(cmd.Context(), in)
			if err != nil {
				return err
			}
			if len(page.Reports) == 0 {
				e.ui.Info("No reports for %s", e.appID)
				return nil
			}
			renderReports(e.ui, page.Reports)
			if page.HasMore {
				e.ui.Info("More results: --offset %d", page.Offset+page.Limit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Status, "status", "", "Filter by status: open, in_progress, resolved, wont_fix")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "Filter by priority: low, medium, high")
	cmd.Flags().IntVar(&in.Limit, "limit", services.DefaultPageSize, "Page size (max 100)")
	cmd.Flags().IntVar(&in.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count distinct issues by status and priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireApp(); err != nil {
				return err
			}
			queries, err := e.queries()
			if err != nil {
				return err
			}
			stats, err := queries.Stats(cmd.Context(), e.appID)
			if err != nil {
				return err
			}

			e.ui.Info("%d distinct issues in %s", stats.Total, e.appID)
			table := e.ui.Table([]string{"Group", "Value", "Count"})
			for _, s := range models.Statuses {
				if n, ok := stats.ByStatus[s]; ok {
					_ = table.Append([]string{"status", output.StatusColor(s), strconv.FormatInt(n, 10)})
				}
			}
			for _, p := range models.Priorities {
				_ = table.Append([]string{"priority", output.PriorityColor(p), strconv.FormatInt(stats.ByPriority[p], 10)})
			}
			return table.Render()
		},
	}
}

func newDuplicatesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates <report-id>",
		Short: "List the duplicates folded into a canonical report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireApp(); err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			queries, err := e.queries()
			if err != nil {
				return err
			}
			canonical, err := queries.Get(cmd.Context(), e.appID, id)
			if err != nil {
				return err
			}
			dups, err := queries.ListDuplicates(cmd.Context(), e.appID, id)
			if err != nil {
				return err
			}

			e.ui.Info("%s  %s  (count %d)", output.Cyan(canonical.ID.String()), truncate(canonical.Description), canonical.DuplicateCount)
			e.ui.VerboseLog("fingerprint %s", canonical.Fingerprint)
			if len(dups) == 0 {
				e.ui.Info("No duplicates")
				return nil
			}
			renderReports(e.ui, dups)
			return nil
		},
	}
}

func renderReports(ui *output.UI, reports []models.Report) {
	table := ui.Table([]string{"ID", "Status", "Priority", "Count", "Created", "Description"})
	for _, r := range reports {
		_ = table.Append([]string{
			r.ID.String(),
			output.StatusColor(r.Status),
			output.PriorityColor(r.Priority),
			strconv.Itoa(r.DuplicateCount),
			r.CreatedAt.UTC().Format(time.DateTime),
			truncate(r.Description),
		})
	}
	_ = table.Render()
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= descriptionWidth {
		return s
	}
	return string(runes[:descriptionWidth-3]) + "..."
}
