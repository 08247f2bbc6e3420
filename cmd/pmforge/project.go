package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/app"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/ingest"
)

func newProjectCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Create and list projects",
	}

	var (
		in   app.CreateProjectInput
		tags []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("project create", func(s *session) error {
				if strings.TrimSpace(string(in.Methodology)) == "" {
					in.Methodology = domain.Methodology(s.cfg.Schedule.Methodology)
				}
				in.Metadata.Tags = tags
				p, err := s.svc.CreateProject(cmd.Context(), in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created project %s (%s, %s)\n", p.Slug, p.ID, p.Methodology)
				return err
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "project name")
	create.Flags().StringVar(&in.Description, "description", "", "project description")
	create.Flags().StringVar((*string)(&in.Methodology), "methodology", "", "waterfall or agile (defaults to schedule.methodology)")
	create.Flags().StringVar(&in.Metadata.Owner, "owner", "", "project owner")
	create.Flags().StringVar(&in.Metadata.Client, "client", "", "client name")
	create.Flags().StringVar(&in.Metadata.Currency, "currency", "", "cost currency")
	create.Flags().StringSliceVar(&tags, "tag", nil, "project tag (repeatable)")
	_ = create.MarkFlagRequired("name")

	var includeArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("project list", func(s *session) error {
				projects, err := s.svc.ListProjects(cmd.Context(), includeArchived)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tSLUG\tNAME\tMETHODOLOGY")
				for _, p := range projects {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Slug, p.Name, p.Methodology)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&includeArchived, "archived", false, "include archived projects")

	cmd.AddCommand(create, list)
	return cmd
}

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var (
		projectRef string
		kind       string
	)
	cmd := &cobra.Command{
		Use:   "ingest [glob...]",
		Short: "Store documents (text, markdown, HTML) for a project",
		Long:  "Store documents for a project. Patterns support ** globs; meeting minutes also yield action items.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession("ingest", func(s *session) error {
				project, err := s.svc.ResolveProject(cmd.Context(), projectRef)
				if err != nil {
					return err
				}
				files, err := ingest.Expand(args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, path := range files {
					doc, err := ingest.LoadFile(path, domain.DocumentKind(kind))
					if err != nil {
						return err
					}
					res, err := s.svc.AddDocument(cmd.Context(), app.AddDocumentInput{
						ProjectID: project.ID,
						Kind:      doc.Kind,
						Title:     doc.Title,
						Text:      doc.Text,
						Source:    doc.Path,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					_, _ = fmt.Fprintf(out, "%s: %s %q", path, res.Document.Kind, res.Document.Title)
					if n := len(res.ActionItems); n > 0 {
						_, _ = fmt.Fprintf(out, ", %d action item(s)", n)
					}
					_, _ = fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectRef, "project", "p", "", "project id or slug")
	cmd.Flags().StringVar(&kind, "kind", "", "document kind: meeting, rfp, proposal, issue (guessed from the file name when empty)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
