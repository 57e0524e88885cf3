package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dbsmedya/claimsurvival/internal/survival"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the configured survival categories",
	Long: `Categories displays the configured taxonomy in its configured order
along with each category's dedup rank (0 wins every overlap) and the
partition key it is read from.

Example:
  claimsurvival categories --config claimsurvival.yaml`,
	RunE: runCategories,
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runCategories(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false, false)
	if err != nil {
		return err
	}

	categories := cfg.Taxonomy.Categories

	cmd.Printf("Categories defined in %s:\n\n", GetConfigFile())
	for i, c := range categories {
		cmd.Printf("%d. %s\n", i+1, c)
		cmd.Printf("   Rank:       %d\n", survival.Rank(cfg, c))
		cmd.Printf("   Partition:  %s\n", cfg.Layout.PartitionKey(c))
	}

	cmd.Printf("\nTotal: %d categories, session keys expire after %s\n", len(categories), cfg.TTL())
	return nil
}
