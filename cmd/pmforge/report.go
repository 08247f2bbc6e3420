package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/app"
)

func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		projectRef string
		weekOf     string
		style      string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build and store the weekly status report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var week time.Time
			if weekOf != "" {
				parsed, err := time.Parse(time.DateOnly, weekOf)
				if err != nil {
					return fmt.Errorf("--week must be YYYY-MM-DD: %w", err)
				}
				week = parsed
			}
			return opts.withSession("report", func(s *session) error {
				project, err := s.svc.ResolveProject(cmd.Context(), projectRef)
				if err != nil {
					return err
				}
				report, err := s.svc.WeeklyReport(cmd.Context(), app.WeeklyReportInput{ProjectID: project.ID, WeekOf: week})
				if err != nil {
					return err
				}
				return printMarkdown(cmd, "> "+report.Summary+"\n\n"+report.BodyMarkdown, style)
			})
		},
	}
	cmd.Flags().StringVarP(&projectRef, "project", "p", "", "project id or slug")
	cmd.Flags().StringVar(&weekOf, "week", "", "any date in the reported week (YYYY-MM-DD); defaults to this week")
	cmd.Flags().StringVar(&style, "style", "auto", "markdown style: auto, dark, light, notty, or raw")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// show targets.
const (
	showSRS      = "srs"
	showSchedule = "schedule"
	showReport   = "report"
	showManifest = "manifest"
)

func newShowCommand(opts *rootOptions) *cobra.Command {
	var (
		projectRef string
		style      string
	)
	cmd := &cobra.Command{
		Use:       "show {srs|schedule|report|manifest}",
		Short:     "Show the latest generated artifact of a project",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{showSRS, showSchedule, showReport, showManifest},
		RunE: func(cmd *cobra.Command, args []string) error {
			what := args[0]
			return opts.withSession("show", func(s *session) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				project, err := s.svc.ResolveProject(ctx, projectRef)
				if err != nil {
					return err
				}
				switch what {
				case showSchedule:
					sched, err := s.svc.LatestSchedule(ctx, project.ID)
					if err != nil {
						return err
					}
					renderSchedule(out, sched)
					return nil
				case showManifest:
					m, err := s.svc.LatestManifest(ctx, project.ID)
					if err != nil {
						return noArtifact(err, "manifest")
					}
					return writeJSON(out, m)
				case showSRS:
					m, err := s.svc.LatestManifest(ctx, project.ID)
					if err != nil {
						return noArtifact(err, "manifest")
					}
					body, err := os.ReadFile(m.Scope.Paths.SRS)
					if err != nil {
						return fmt.Errorf("read srs: %w", err)
					}
					return printMarkdown(cmd, string(body), style)
				case showReport:
					reports, err := s.svc.ListWeeklyReports(ctx, project.ID)
					if err != nil {
						return err
					}
					if len(reports) == 0 {
						return errors.New("no weekly report yet; run `pmforge report` first")
					}
					latest := reports[0]
					return printMarkdown(cmd, "> "+latest.Summary+"\n\n"+latest.BodyMarkdown, style)
				default:
					return fmt.Errorf("unknown artifact %q (want srs, schedule, report, or manifest)", what)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&projectRef, "project", "p", "", "project id or slug")
	cmd.Flags().StringVar(&style, "style", "auto", "markdown style: auto, dark, light, notty, or raw")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func printMarkdown(cmd *cobra.Command, body, style string) error {
	rendered, err := renderMarkdown(body, style, 0)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
	return err
}

func noArtifact(err error, what string) error {
	if errors.Is(err, app.ErrNotFound) {
		return fmt.Errorf("no %s yet; run `pmforge generate` first: %w", what, err)
	}
	return err
}
