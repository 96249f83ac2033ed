package cli

import (
	"errors"

	"gamification-engine/services"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert missing default badges and perks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.close()

		catalog, err := services.NewCatalogService(rt.db, rt.cfg.Gamification.CatalogCacheSize, rt.logger)
		if err != nil {
			return err
		}
		if !catalog.EnsureCatalog(cmd.Context()) {
			return errors.New("catalog not seeded, run migrate first")
		}
		rt.logger.Info("catalog seeded")
		return nil
	},
}
