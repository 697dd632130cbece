package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func initIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-index",
		Short: "Create the indexes of every registered document type",
		Long: `Create the post index in the configured store. Existing indexes are left
untouched, so the command is safe to run on every deploy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.EnsureIndexes(cmd.Context()); err != nil {
				return fmt.Errorf("init indexes: %w", err)
			}
			for _, def := range a.client.Registry().Definitions() {
				a.logger.Info("index ready", zap.String("index", def.Name), zap.String("kind", def.Kind))
			}
			return nil
		},
	}
}
