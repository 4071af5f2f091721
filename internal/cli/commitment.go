package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(commitmentCmd)
	commitmentCmd.AddCommand(commitmentShowCmd)
}

var commitmentCmd = &cobra.Command{
	Use:   "commitment",
	Short: "Inspect timed commitments",
}

var commitmentShowCmd = &cobra.Command{
	Use:   "show COMMITMENT_ID",
	Short: "Show a commitment's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		c, err := svc.db.GetCommitment(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("commitment:   %s\nkind:         %s\nstatus:       %s\ninitiator:    %s\n",
			c.ID, c.Kind, c.Status, c.InitiatorID)
		if c.CounterpartyID != "" {
			fmt.Printf("counterparty: %s\n", c.CounterpartyID)
		}
		fmt.Printf("reward:       %d points\n", c.RewardPoints)
		if c.Details != "" {
			fmt.Printf("details:      %s\n", c.Details)
		}
		if !c.ScheduledAt.IsZero() {
			fmt.Printf("scheduled:    %s\n", c.ScheduledAt.Format("2006-01-02 15:04"))
		}
		if !c.CompletedAt.IsZero() {
			fmt.Printf("completed:    %s\n", c.CompletedAt.Format("2006-01-02 15:04"))
		}
		if !c.RewardUnlockAt.IsZero() {
			fmt.Printf("unlocks:      %s (settled: %v)\n", c.RewardUnlockAt.Format("2006-01-02 15:04"), c.Settled)
		}
		return nil
	},
}
