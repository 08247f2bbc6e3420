package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/ingest"
)

func newGenerateCommand(opts *rootOptions) *cobra.Command {
	var (
		projectRef  string
		text        string
		files       []string
		wbsPath     string
		reqPath     string
		changesPath string
		estimation  string
		startDate   string
		integrator  bool
		useQuality  bool
		useRisk     bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the planning pipeline and write the proposal manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("generate", func(s *session) error {
				project, err := s.svc.ResolveProject(cmd.Context(), projectRef)
				if err != nil {
					return err
				}
				in := app.GenerateInput{
					ProjectID:        project.ID,
					Text:             text,
					WBSPath:          wbsPath,
					RequirementsPath: reqPath,
					Options: agent.Options{
						EstimationMode: estimation,
						StartDate:      startDate,
					},
				}
				if len(files) > 0 {
					extra, err := loadText(files)
					if err != nil {
						return err
					}
					in.Text = strings.TrimSpace(in.Text + "\n\n" + extra)
				}
				if changesPath != "" {
					if in.ChangeRequests, err = readChangeRequests(changesPath, cmd.InOrStdin()); err != nil {
						return err
					}
				}
				flags := cmd.Flags()
				if flags.Changed("integrator") {
					in.Options.UseIntegrator = agent.BoolPtr(integrator)
				}
				if flags.Changed("quality") {
					in.Options.UseQuality = agent.BoolPtr(useQuality)
				}
				if flags.Changed("risk") {
					in.Options.UseRisk = agent.BoolPtr(useRisk)
				}

				m, err := s.svc.GeneratePlan(cmd.Context(), in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, m)
				}
				_, _ = fmt.Fprintf(out, "manifest: %s\n", m.Path)
				_, _ = fmt.Fprintf(out, "requirements: %d\n", len(m.Scope.Requirements))
				_, _ = fmt.Fprintf(out, "cost: %.2f %s\n", m.Cost.TotalCost, s.cfg.Cost.Currency)
				renderSteps(out, m.Steps)
				if m.Result.Schedule != nil {
					renderSchedule(out, *m.Result.Schedule)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&projectRef, "project", "p", "", "project id or slug")
	f.StringVar(&text, "text", "", "extra requirements text placed ahead of stored documents")
	f.StringSliceVar(&files, "file", nil, "extra input files or globs read as text (not stored)")
	f.StringVar(&wbsPath, "wbs", "", "existing WBS file (JSON or YAML) used instead of the scope WBS")
	f.StringVar(&reqPath, "requirements", "", "requirements JSON file used to synthesize a WBS")
	f.StringVar(&changesPath, "changes", "", "change requests JSON file applied after scheduling ('-' for stdin)")
	f.StringVar(&estimation, "estimation", "", "estimation mode: heuristic or llm")
	f.StringVar(&startDate, "start-date", "", "project start date (YYYY-MM-DD)")
	f.BoolVar(&integrator, "integrator", false, "run the integrator step")
	f.BoolVar(&useQuality, "quality", false, "run the quality step after scope")
	f.BoolVar(&useRisk, "risk", true, "run the risk step")
	f.BoolVar(&asJSON, "json", false, "print the manifest as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newReplanCommand(opts *rootOptions) *cobra.Command {
	var (
		projectRef  string
		changesPath string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "replan",
		Short: "Apply change requests to the latest schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("replan", func(s *session) error {
				project, err := s.svc.ResolveProject(cmd.Context(), projectRef)
				if err != nil {
					return err
				}
				crs, err := readChangeRequests(changesPath, cmd.InOrStdin())
				if err != nil {
					return err
				}
				revised, err := s.svc.Replan(cmd.Context(), project.ID, crs)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, revised)
				}
				for _, entry := range revised.ChangeRequests {
					status := "applied"
					if !entry.OK {
						status = "rejected: " + entry.Reason
					}
					_, _ = fmt.Fprintf(out, "%s %s: %s\n", entry.Op, entry.TaskID, status)
				}
				_, _ = fmt.Fprintf(out, "finish: day %d (was %d)\n", revised.ProjectFinish, revised.BaselineFinish)
				renderSchedule(out, revised)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectRef, "project", "p", "", "project id or slug")
	cmd.Flags().StringVar(&changesPath, "changes", "-", "change requests JSON file ('-' for stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the revised schedule as JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// readChangeRequests decodes a JSON array of change requests, or an object carrying one under
// "change_requests".
func readChangeRequests(path string, stdin io.Reader) ([]domain.ChangeRequest, error) {
	var (
		content []byte
		err     error
	)
	if path == "" || path == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read change requests: %w", err)
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil, app.ErrEmptyChangeSet
	}
	var crs []domain.ChangeRequest
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			ChangeRequests []domain.ChangeRequest `json:"change_requests"`
		}
		err = json.Unmarshal([]byte(trimmed), &wrapped)
		crs = wrapped.ChangeRequests
	} else {
		err = json.Unmarshal([]byte(trimmed), &crs)
	}
	if err != nil {
		return nil, fmt.Errorf("decode change requests: %w", err)
	}
	return crs, nil
}

// loadText reads files matched by patterns and joins their text.
func loadText(patterns []string) (string, error) {
	paths, err := ingest.Expand(patterns)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		doc, err := ingest.LoadFile(path, "")
		if err != nil {
			return "", err
		}
		parts = append(parts, strings.TrimSpace(doc.Text))
	}
	return strings.Join(parts, "\n\n"), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
