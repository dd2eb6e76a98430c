package authctl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b Backend) error {
				if err := b.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "migrations applied")
				return nil
			})
		},
	}
}

func newCreatePrincipalCmd(a *app) *cobra.Command {
	var (
		kind          string
		email         string
		name          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create-principal",
		Short: "Create a user or agent account",
		Long: `Create a user or agent account with a password.

The password is prompted for on the terminal, or read from the first line of
standard input with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := models.PrincipalKind(kind)
			if k != models.PrincipalUser && k != models.PrincipalAgent {
				return fmt.Errorf("unknown principal kind %q (want user or agent)", kind)
			}

			password, err := a.password(passwordStdin)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			return a.withBackend(cmd, func(ctx context.Context, b Backend) error {
				p, err := b.CreatePrincipal(ctx, k, email, name, string(password))
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(a.stdout, "created %s %s (%s)\n", p.Kind, p.ID, p.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(models.PrincipalUser), "principal kind: user or agent")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from standard input")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSendOTPCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "send-otp",
		Short: "Generate and deliver a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b Backend) error {
				if err := b.SendOTP(ctx, email); err != nil {
					return describe(err)
				}
				fmt.Fprintf(a.stdout, "code sent to %s\n", email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newVerifyOTPCmd(a *app) *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "verify-otp",
		Short: "Verify a one-time code and print the reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b Backend) error {
				reset, err := b.VerifyOTP(ctx, email, strings.TrimSpace(code))
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(a.stdout, "reset token: %s\nexpires at: %s\n", reset.Token, reset.ExpiresAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "one-time code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired one-time codes and reset tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd, func(ctx context.Context, b Backend) error {
				otps, resets, err := b.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "deleted %d expired codes and %d expired reset tokens\n", otps, resets)
				return nil
			})
		},
	}
}

// describe prefixes business errors with their kind so scripts can match on it.
func describe(err error) error {
	if e, ok := common.AsError(err); ok {
		return fmt.Errorf("%s: %s", e.Kind, e.UserMessage)
	}
	return err
}
