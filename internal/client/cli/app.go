// Package cli implements the erpkeeper command line client. Each account
// operation is a cobra subcommand; the token pair is cached in a local
// SQLite file between invocations.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/erpkeeper/internal/client/api"
	"github.com/dmitrijs2005/erpkeeper/internal/client/config"
	"github.com/dmitrijs2005/erpkeeper/internal/client/session"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

type App struct {
	in     *bufio.Reader
	out    io.Writer
	lookup envconfig.Lookuper

	configPath string
	server     string
	sessionDB  string

	store  *session.SQLiteStore
	client *api.Client
}

func NewApp(in io.Reader, out io.Writer, lookup envconfig.Lookuper) *App {
	return &App{in: bufio.NewReader(in), out: out, lookup: lookup}
}

// Execute runs the command line in args and releases the session store.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.out)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "erpkeeper",
		Short:         "Account and session client for the erpkeeper API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.connect(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "JSON config file")
	f.StringVar(&a.server, "server", "", "API base URL (overrides config)")
	f.StringVar(&a.sessionDB, "session-db", "", "session cache file (overrides config)")

	cmd.AddCommand(
		a.registerCommand(),
		a.verifyCommand(),
		a.resendCommand(),
		a.loginCommand(),
		a.refreshCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.changePasswordCommand(),
		a.forgotPasswordCommand(),
		a.resetPasswordCommand(),
		a.changeEmailCommand(),
		a.confirmEmailCommand(),
	)
	return cmd
}

func (a *App) connect(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx, a.configPath, a.lookup)
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.ServerURL = a.server
	}
	if a.sessionDB != "" {
		cfg.SessionDB = a.sessionDB
	}

	a.store, err = session.Open(ctx, cfg.SessionDB)
	if err != nil {
		return err
	}
	a.client = api.New(cfg.ServerURL, cfg.Timeout, a.store)
	return nil
}

func (a *App) close() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) warn(warning string) {
	if warning != "" {
		a.printf("warning: %s\n", warning)
	}
}
