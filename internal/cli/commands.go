package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/auth"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/common/utils"
	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

// ErrRankViolations makes verify-ranks exit non-zero
var ErrRankViolations = errors.New("waitlist rank violations found")

// ExpireCmd moves overdue pending suggestions to EXPIRED
func ExpireCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire suggestions whose response deadline has passed",
		Long: `Finds PENDING_FIRST_PARTY and PENDING_SECOND_PARTY suggestions past their
response deadline and moves each to EXPIRED in its own transaction.
Run it from cron; it is safe to run concurrently with the API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, _ := cmd.Flags().GetString("as-of")

			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				now := app.Now()
				if asOf != "" {
					t, err := time.Parse(time.RFC3339, asOf)
					if err != nil {
						return fmt.Errorf("invalid --as-of: %w", err)
					}
					now = t
				}

				report, err := app.Service.ExpireOverdue(ctx, now)
				if err != nil {
					return fmt.Errorf("expiry sweep failed: %w", err)
				}

				fmt.Fprintf(app.Out, "Checked %d overdue suggestions as of %s\n", report.Checked, now.Format(time.RFC3339))
				for _, id := range report.Expired {
					fmt.Fprintf(app.Out, "  %s %s\n", color.New(color.FgYellow).Sprint("EXPIRED"), id)
				}
				fmt.Fprintf(app.Out, "%s expired, %d skipped, %s\n",
					color.New(color.FgGreen).Sprint(len(report.Expired)),
					report.Skipped,
					failedText(report.Failed))

				if report.Failed > 0 {
					return fmt.Errorf("%d suggestions could not be expired", report.Failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("as-of", "", "evaluate deadlines at this RFC3339 instant instead of now")
	return cmd
}

func failedText(n int) string {
	s := fmt.Sprintf("%d failed", n)
	if n > 0 {
		return color.New(color.FgRed).Sprint(s)
	}
	return s
}

// VerifyRanksCmd audits that every waitlist is ranked 1..N
func VerifyRanksCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-ranks",
		Short: "Check that every first party's waitlist ranks are exactly 1..N",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				violations, err := app.Service.VerifyRanks(ctx)
				if err != nil {
					return fmt.Errorf("rank audit failed: %w", err)
				}

				if len(violations) == 0 {
					fmt.Fprintf(app.Out, "%s all waitlists are densely ranked\n", color.New(color.FgGreen).Sprint("✓"))
					return nil
				}

				w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "FIRST PARTY\tRANKS\tPROBLEM")
				fmt.Fprintln(w, "-----------\t-----\t-------")
				for _, v := range violations {
					fmt.Fprintf(w, "%d\t%v\t%s\n", v.FirstPartyID, v.Ranks, v.Problem)
				}
				w.Flush()

				fmt.Fprintf(app.Out, "%s %d waitlists need repair\n", color.New(color.FgRed).Sprint("✗"), len(violations))
				return ErrRankViolations
			})
		},
	}
}

// ShowCmd prints one suggestion with its history
func ShowCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "show [suggestion-id]",
		Short: "Show a suggestion's status, deadlines and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid suggestion id: %w", err)
			}

			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				sg, err := app.Repo.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("suggestion not found: %w", err)
				}

				history, err := app.Repo.History(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load history: %w", err)
				}

				label := suggestion.Render(sg.Status, false)
				fmt.Fprintf(app.Out, "Suggestion: %s\n", sg.ID)
				fmt.Fprintf(app.Out, "Status: %s (%s)\n", statusColor(sg.Status).Sprint(sg.Status), label.Label)
				fmt.Fprintf(app.Out, "Parties: first=%d second=%d matchmaker=%d\n", sg.FirstPartyID, sg.SecondPartyID, sg.MatchmakerID)
				fmt.Fprintf(app.Out, "Priority: %s\n", sg.Priority)
				fmt.Fprintf(app.Out, "Response deadline: %s\n", sg.ResponseDeadline.Format(time.RFC3339))
				if sg.Waitlist != nil {
					fmt.Fprintf(app.Out, "Waitlist rank: %d\n", sg.Waitlist.Rank)
				}
				fmt.Fprintf(app.Out, "Version: %d\n", sg.Version)

				fmt.Fprintln(app.Out, "\nHistory:")
				w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
				for _, h := range history {
					fmt.Fprintf(w, "  %s\t%s\t%s\n", h.CreatedAt.Format(time.RFC3339), h.Status, deref(h.Reason))
				}
				w.Flush()
				return nil
			})
		},
	}
}

func statusColor(s suggestion.Status) *color.Color {
	switch s.Category() {
	case suggestion.CategoryDeclined:
		return color.New(color.FgRed)
	case suggestion.CategoryCompleted:
		return color.New(color.FgGreen)
	case suggestion.CategoryPending:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgCyan)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TokenCmd mints an access token for local testing
func TokenCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			switch role {
			case auth.RoleCandidate, auth.RoleMatchmaker, auth.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			return withApp(cmd, load, func(ctx context.Context, app *App) error {
				now := app.Now()
				token, err := utils.GenerateJWT(&utils.JWTClaims{
					UserID:    userID,
					Role:      role,
					Type:      "access",
					IssuedAt:  now.Unix(),
					ExpiresAt: now.Add(ttl).Unix(),
					Issuer:    "suggestionctl",
				}, app.JWTSecret)
				if err != nil {
					return err
				}

				fmt.Fprintln(app.Out, token)
				return nil
			})
		},
	}

	cmd.Flags().String("role", auth.RoleCandidate, "role claim: candidate, matchmaker or admin")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
