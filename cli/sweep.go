package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesu/settlement-engine/engine"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().String("as-of", "", "Settlement date (YYYY-MM-DD, default: today)")
	sweepCmd.Flags().Bool("dry-run", false, "Compute and report amounts without committing")
	sweepCmd.Flags().String("db", "", "SQLite database path (overrides config)")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one settlement sweep over every account",
	Long: `Evaluate every account for due settlements as of the given date and
commit them. Safe to run repeatedly: already-settled events report as
skipped. With --dry-run the identical evaluation runs but nothing is
written.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	dbOverride, _ := cmd.Flags().GetString("db")
	cfg, err := loadConfig(dbOverride)
	if err != nil {
		return err
	}

	asOf := engine.Today()
	if s, _ := cmd.Flags().GetString("as-of"); s != "" {
		asOf, err = engine.ParseDate(s)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	store, eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		eng = eng.WithDryRun()
		fmt.Println("DRY RUN - nothing will be committed")
	}

	results, err := eng.RunSweep(context.Background(), asOf)
	if err != nil {
		return err
	}

	var settled, skipped, failed int
	for _, res := range results {
		switch res.Status {
		case engine.SettlementSettled:
			settled++
			fmt.Printf("  settled %-20s %12s  account=%s receipt=%s\n",
				res.Kind, res.Amount, res.AccountID, res.Receipt)
		case engine.SettlementSkipped:
			skipped++
		case engine.SettlementFailed:
			failed++
			fmt.Printf("  FAILED  %-20s account=%s subject=%s: %v\n",
				res.Kind, res.AccountID, res.SubjectID, res.Err)
		}
	}

	fmt.Printf("Sweep as of %s: %d settled, %d skipped, %d failed\n",
		asOf, settled, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d settlement(s) failed", failed)
	}
	return nil
}
