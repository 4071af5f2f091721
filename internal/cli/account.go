package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/merit-works/merit/internal/domain"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountBalanceCmd)
	accountCmd.AddCommand(accountHistoryCmd)
	accountCmd.AddCommand(accountCreditCmd)
	accountCmd.AddCommand(accountConvertCmd)

	accountHistoryCmd.Flags().IntP("limit", "n", 20, "number of transactions to show")
	accountCreditCmd.Flags().String("source", "manual_adjustment", "transaction source label")
	accountConvertCmd.Flags().Float64("rate", 0.01, "value per point")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect and adjust points accounts",
}

var accountBalanceCmd = &cobra.Command{
	Use:   "balance OWNER_ID",
	Short: "Show an owner's points balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		acc, err := svc.ledger.Balance(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d points\n", acc.OwnerID, acc.Balance)
		return nil
	},
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history OWNER_ID",
	Short: "Show an owner's recent ledger transactions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		history, err := svc.ledger.History(context.Background(), args[0], limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tTYPE\tAMOUNT\tBALANCE\tSOURCE")
		for _, tx := range history {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
				tx.CreatedAt.Format("2006-01-02 15:04"), tx.Type, tx.Amount, tx.BalanceAfter, tx.Source)
		}
		return w.Flush()
	},
}

var accountCreditCmd = &cobra.Command{
	Use:   "credit OWNER_ID POINTS",
	Short: "Credit points to an owner (creates the account if missing)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid points %q", args[1])
		}
		source, _ := cmd.Flags().GetString("source")

		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx := context.Background()
		if _, err := svc.ledger.EnsureAccount(ctx, args[0]); err != nil {
			return err
		}
		tx, err := svc.ledger.Credit(ctx, args[0], points, domain.TxEarn, source, nil)
		if err != nil {
			return err
		}
		fmt.Printf("credited %d points to %s (balance %d)\n", tx.Amount, args[0], tx.BalanceAfter)
		return nil
	},
}

var accountConvertCmd = &cobra.Command{
	Use:   "convert OWNER_ID POINTS",
	Short: "Convert points into subscription value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid points %q", args[1])
		}
		rate, _ := cmd.Flags().GetFloat64("rate")

		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		conv, err := svc.ledger.Convert(context.Background(), args[0], points, rate)
		if err != nil {
			return err
		}
		fmt.Printf("converted %d points at %g → %.2f (balance %d)\n",
			conv.Points, conv.Rate, conv.Value, conv.Transaction.BalanceAfter)
		return nil
	},
}
