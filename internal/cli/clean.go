package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/ytfetch/internal/storage"
)

var flagOlderThan time.Duration

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete downloads older than a given age",
	Args:  cobra.NoArgs,
	RunE:  cleanRun,
}

func init() {
	cleanCmd.Flags().DurationVar(&flagOlderThan, "older-than", 0, "Maximum file age (default: retention from config)")
}

func cleanRun(cmd *cobra.Command, args []string) error {
	maxAge := flagOlderThan
	if maxAge == 0 {
		maxAge = cfg.Retention.Duration
	}
	if maxAge <= 0 {
		return fmt.Errorf("no age given: pass --older-than or set retention")
	}

	dir, err := downloadDir()
	if err != nil {
		return err
	}
	store, err := storage.New(dir)
	if err != nil {
		return err
	}

	n, err := store.Cleanup(maxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", n, store.Dir())
	return nil
}
