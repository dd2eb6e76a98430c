package authctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/spf13/cobra"
)

// Remote is the part of client.Client the remote commands use.
type Remote interface {
	Login(ctx context.Context, email, password string) error
	Me(ctx context.Context) (*client.Identity, error)
	Health(ctx context.Context) error
	Close() error
}

// DialFunc connects to a running gophauth server.
type DialFunc func(addr string) (Remote, error)

func dialServer(addr string) (Remote, error) {
	return client.NewGRPCClient(addr)
}

func (a *app) withRemote(cmd *cobra.Command, addr string, timeout time.Duration, fn func(ctx context.Context, r Remote) error) error {
	r, err := a.dial(addr)
	if err != nil {
		return err
	}
	defer r.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return fn(ctx, r)
}

func newHealthCmd(a *app) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running server is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRemote(cmd, addr, timeout, func(ctx context.Context, r Remote) error {
				if err := r.Health(ctx); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s: serving\n", addr)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	var (
		addr          string
		email         string
		passwordStdin bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Sign in to a running server and print the resolved identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := a.password(passwordStdin)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(password)

			return a.withRemote(cmd, addr, timeout, func(ctx context.Context, r Remote) error {
				if err := r.Login(ctx, email, string(password)); err != nil {
					return describe(err)
				}
				id, err := r.Me(ctx)
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(a.stdout, "%s (%s)\n", id.Email, id.UserID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "server address")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from standard input")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// password reads a non-empty password from stdin or the terminal.
func (a *app) password(fromStdin bool) ([]byte, error) {
	var pw []byte
	if fromStdin {
		line, err := readLine(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		pw = []byte(line)
	} else {
		p, err := promptPassword(a.stderr, "Password: ")
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		pw = p
	}
	if len(pw) == 0 {
		return nil, errors.New("password must not be empty")
	}
	return pw, nil
}
