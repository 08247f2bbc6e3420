package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/app"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		outPath  string
		projects []string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export projects and their records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("export", func(s *session) error {
				bundle, err := s.svc.ExportProjects(cmd.Context(), projects...)
				if err != nil {
					return fmt.Errorf("export projects: %w", err)
				}
				encoded, err := json.MarshalIndent(bundle, "", "  ")
				if err != nil {
					return fmt.Errorf("encode export json: %w", err)
				}
				encoded = append(encoded, '\n')
				if outPath == "-" {
					_, err := cmd.OutOrStdout().Write(encoded)
					return err
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringSliceVarP(&projects, "project", "p", nil, "project id or slug to export (repeatable; default all)")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var bundle app.Export
			if err := json.Unmarshal(content, &bundle); err != nil {
				return fmt.Errorf("decode export json: %w", err)
			}
			return opts.withSession("import", func(s *session) error {
				if err := s.svc.ImportProjects(cmd.Context(), bundle); err != nil {
					return fmt.Errorf("import projects: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "imported %d project(s)\n", len(bundle.Projects))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input export JSON file")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
