package main

import (
	"fmt"

	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/pkg/common"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Work the moderation queue",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued writes",
	Args:  cobra.NoArgs,
	RunE:  runPendingList,
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a queued write and apply it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPendingApprove,
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a queued write",
	Args:  cobra.ExactArgs(1),
	RunE:  runPendingReject,
}

var (
	pendingStatus string
	pendingLimit  int
)

func init() {
	pendingListCmd.Flags().StringVarP(&pendingStatus, "status", "s", string(entities.PendingStatusPending), "Status to list")
	pendingListCmd.Flags().IntVarP(&pendingLimit, "limit", "n", 50, "Maximum number of entries")

	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingApproveCmd)
	pendingCmd.AddCommand(pendingRejectCmd)
	rootCmd.AddCommand(pendingCmd)
}

func runPendingList(cmd *cobra.Command, args []string) error {
	actions, err := container.Gate.List(cmd.Context(), entities.PendingStatus(pendingStatus), pendingLimit)
	if err != nil {
		return fmt.Errorf("failed to list pending actions: %w", err)
	}

	if len(actions) == 0 {
		cmd.Printf("No %s actions\n", pendingStatus)
		return nil
	}

	for _, pa := range actions {
		cmd.Printf("  %s\n", pa.ID)
		cmd.Printf("    Action:  %s\n", pa.Action)
		cmd.Printf("    Actor:   %s\n", pa.Actor)
		cmd.Printf("    Payload: %s\n", pa.Payload)
		cmd.Printf("    Created: %s\n", pa.CreatedAt.Format("2006-01-02 15:04:05"))
		cmd.Println()
	}
	cmd.Printf("Total: %d\n", len(actions))
	return nil
}

func runPendingApprove(cmd *cobra.Command, args []string) error {
	ctx := operatorContext(cmd.Context())
	pa, err := container.Gate.Approve(ctx, args[0], common.Actor(ctx))
	if err != nil {
		return fmt.Errorf("failed to approve %s: %w", args[0], err)
	}
	printDecision(cmd, pa)
	return nil
}

func runPendingReject(cmd *cobra.Command, args []string) error {
	ctx := operatorContext(cmd.Context())
	pa, err := container.Gate.Reject(ctx, args[0], common.Actor(ctx))
	if err != nil {
		return fmt.Errorf("failed to reject %s: %w", args[0], err)
	}
	printDecision(cmd, pa)
	return nil
}

func printDecision(cmd *cobra.Command, pa *entities.PendingAction) {
	cmd.Printf("%s %s by %s\n", pa.ID, pa.Status, pa.Moderator)
	if pa.Error != "" {
		cmd.Printf("  Note: %s\n", pa.Error)
	}
}
