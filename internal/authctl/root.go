// Package authctl implements the gophauth operator CLI: schema migrations,
// principal provisioning, OTP checks and expired-row cleanup.
package authctl

import (
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	dsn        string
	verbose    bool

	loadConfig func() (*config.Config, error)
	open       OpenFunc
	dial       DialFunc

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr, config.LoadConfig, openDeps, dialServer)
}

func newRootCommand(in io.Reader, out, errOut io.Writer, load func() (*config.Config, error), open OpenFunc, dial DialFunc) *cobra.Command {
	a := &app{
		loadConfig: load,
		open:       open,
		dial:       dial,
		stdin:      in,
		stdout:     out,
		stderr:     errOut,
	}

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tool for the gophauth token service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	// -c and -d are also read by config.LoadConfig from the raw arguments.
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the JSON config file")
	cmd.PersistentFlags().StringVarP(&a.dsn, "dsn", "d", "", "override the PostgreSQL DSN")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newMigrateCmd(a),
		newCreatePrincipalCmd(a),
		newSendOTPCmd(a),
		newVerifyOTPCmd(a),
		newSweepCmd(a),
		newHealthCmd(a),
		newWhoamiCmd(a),
	)
	return cmd
}

// withBackend loads the configuration, opens a Backend, runs fn and closes
// the backend.
func (a *app) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dsn") {
		cfg.DatabaseDSN = a.dsn
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := a.open(ctx, cfg, a.verbose, a.stdout)
	if err != nil {
		return err
	}

	runErr := fn(ctx, b)
	if err := b.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
