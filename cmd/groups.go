package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-dedup/internal/model"
	"github.com/sells-group/listing-dedup/internal/resilience"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Inspect and review listing groups",
}

var groupsListStatus string

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		groups, err := env.Store.ListGroupsByStatus(ctx, model.GroupStatus(groupsListStatus), 100)
		if err != nil {
			return err
		}

		for _, g := range groups {
			members, err := env.Store.ListGroupMembers(ctx, g.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%s  status=%s  score=%.4f  members=%d", g.ID, g.Status, g.MatchScore, len(members))
			if g.MatchedPropertyID != nil {
				fmt.Printf("  matched_property=%s", *g.MatchedPropertyID)
			}
			fmt.Println()
		}
		fmt.Printf("%d group(s)\n", len(groups))
		return nil
	},
}

var groupsApproveCmd = &cobra.Command{
	Use:   "approve <group-id>",
	Short: "Approve a pending-review group for unification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Service.ApproveGroup(cmd.Context(), args[0])
	},
}

var groupsRejectReason string

var groupsRejectCmd = &cobra.Command{
	Use:   "reject <group-id>",
	Short: "Reject a pending-review group and release its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if groupsRejectReason == "" {
			return eris.New("--reason is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Service.RejectGroup(cmd.Context(), args[0], groupsRejectReason)
	},
}

var groupsClaimCmd = &cobra.Command{
	Use:   "claim <group-id>",
	Short: "Claim an approved group for unification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Service.ClaimGroup(cmd.Context(), args[0])
	},
}

var groupsCompletePropertyID string

var groupsCompleteCmd = &cobra.Command{
	Use:   "complete <group-id>",
	Short: "Mark a claimed group as unified into a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if groupsCompletePropertyID == "" {
			return eris.New("--property is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Service.CompleteGroup(cmd.Context(), args[0], groupsCompletePropertyID)
	},
}

var (
	groupsFailReason    string
	groupsFailTransient bool
)

var groupsFailCmd = &cobra.Command{
	Use:   "fail <group-id>",
	Short: "Record a failed unification attempt for a claimed group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if groupsFailReason == "" {
			return eris.New("--reason is required")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		cause := error(eris.New(groupsFailReason))
		if groupsFailTransient {
			cause = resilience.NewTransientError(cause)
		}
		return env.Service.HandleUnificationFailure(cmd.Context(), args[0], cause)
	},
}

func init() {
	groupsListCmd.Flags().StringVar(&groupsListStatus, "status", "pending_review", "group status to list")
	groupsRejectCmd.Flags().StringVar(&groupsRejectReason, "reason", "", "why the group is not a real match")
	groupsCompleteCmd.Flags().StringVar(&groupsCompletePropertyID, "property", "", "canonical property id produced by unification")
	groupsFailCmd.Flags().StringVar(&groupsFailReason, "reason", "", "failure cause")
	groupsFailCmd.Flags().BoolVar(&groupsFailTransient, "transient", false, "treat the failure as retryable")

	groupsCmd.AddCommand(groupsListCmd, groupsApproveCmd, groupsRejectCmd, groupsClaimCmd, groupsCompleteCmd, groupsFailCmd)
	rootCmd.AddCommand(groupsCmd)
}
