package main

import (
	"github.com/spf13/cobra"

	"github.com/evanschultz/pmforge/internal/adapters/server"
	"github.com/evanschultz/pmforge/internal/adapters/server/common"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		bind        string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools, health, and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession("serve", func(s *session) error {
				cfg := server.Config{
					HTTPBind:      firstNonEmpty(bind, s.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, s.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, s.cfg.Server.MCPEndpoint),
					ServerName:    opts.appName,
					ServerVersion: version,
				}
				s.logger.Info("http server starting", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return server.Run(cmd.Context(), cfg, server.Dependencies{
					Service: common.NewAppServiceAdapter(s.svc),
					Metrics: s.metrics.Handler(),
					Ready:   s.repo.Ping,
				})
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (defaults to server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST mount point (defaults to server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP mount point (defaults to server.mcp_endpoint)")
	return cmd
}
