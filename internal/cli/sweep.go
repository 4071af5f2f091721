package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/merit-works/merit/internal/api"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one settlement sweep against the local store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		settled, errs := svc.sweeper.Sweep(context.Background())
		fmt.Printf("settled %d commitments\n", settled)
		for _, err := range errs {
			fmt.Printf("error: %v\n", err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%d commitments failed to settle", len(errs))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the merit version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("merit " + api.Version)
	},
}
