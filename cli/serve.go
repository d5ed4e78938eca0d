package cli

import (
	"github.com/CarnegieLearningWeb/upgrade-agent/engine/infra/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent as an HTTP chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := setupContext(cmd.Context())
			if err != nil {
				return err
			}
			application, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer application.close(ctx)

			srv := server.New(cfg, application.engine, application.store, application.client)
			return srv.Run(ctx)
		},
	}
}
