package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(missionCmd)
	missionCmd.AddCommand(missionFundCmd)
	missionCmd.AddCommand(missionShowCmd)
	missionCmd.AddCommand(missionCancelCmd)
	missionCmd.AddCommand(missionApproveCmd)
	missionCmd.AddCommand(missionRejectCmd)

	missionCancelCmd.Flags().String("reason", "cancelled by operator", "cancellation reason")
	missionRejectCmd.Flags().String("feedback", "", "feedback for the participant")
}

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Manage mission funding pools",
}

var missionFundCmd = &cobra.Command{
	Use:   "fund BUSINESS_ID MISSION_ID POINTS_PER_SLOT MAX_SLOTS",
	Short: "Reserve points for a mission",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		perSlot, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid points per slot %q", args[2])
		}
		maxSlots, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid max slots %q", args[3])
		}

		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		pool, err := svc.missions.Fund(context.Background(), args[0], args[1], perSlot, maxSlots)
		if err != nil {
			return err
		}
		fmt.Printf("mission %s funded: %d × %d slots = %d points reserved\n",
			pool.MissionID, pool.PointsPerSlot, pool.MaxSlots, pool.FundedAmount())
		return nil
	},
}

var missionShowCmd = &cobra.Command{
	Use:   "show MISSION_ID",
	Short: "Show a mission funding pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		pool, err := svc.missions.Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("mission:   %s\nbusiness:  %s\nstatus:    %s\nslots:     %d/%d consumed\nper slot:  %d points\nrefundable: %d points\n",
			pool.MissionID, pool.BusinessID, pool.Status, pool.SlotsConsumed, pool.MaxSlots,
			pool.PointsPerSlot, pool.RefundableAmount())
		return nil
	},
}

var missionCancelCmd = &cobra.Command{
	Use:   "cancel MISSION_ID",
	Short: "Cancel a mission and refund the unconsumed remainder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		pool, refund, err := svc.missions.Cancel(context.Background(), args[0], reason)
		if err != nil {
			return err
		}
		fmt.Printf("mission %s cancelled, %d points refunded to %s\n", pool.MissionID, refund, pool.BusinessID)
		return nil
	},
}

var missionApproveCmd = &cobra.Command{
	Use:   "approve PARTICIPATION_ID POINTS",
	Short: "Approve a pending participation and award points",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid points %q", args[1])
		}

		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		p, err := svc.participations.Approve(context.Background(), args[0], points)
		if err != nil {
			return err
		}
		fmt.Printf("participation %s approved, %d points awarded to %s\n", p.ID, points, p.UserID)
		return nil
	},
}

var missionRejectCmd = &cobra.Command{
	Use:   "reject PARTICIPATION_ID",
	Short: "Reject a participation, reversing any awarded points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedback, _ := cmd.Flags().GetString("feedback")
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		res, err := svc.participations.Reject(context.Background(), args[0], feedback)
		if err != nil {
			return err
		}
		fmt.Printf("participation %s rejected, %d points reversed", res.Participation.ID, res.Reversed)
		if res.Shortfall > 0 {
			fmt.Printf(" (%d point shortfall)", res.Shortfall)
		}
		fmt.Println()
		return nil
	},
}
