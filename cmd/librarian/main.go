// Command librarian runs maintenance tasks against the library database.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gorm.io/gorm"

	"library_backend/pkg/catalog"
	"library_backend/pkg/config"
	"library_backend/pkg/database"
	"library_backend/pkg/lending"
	"library_backend/pkg/members"
	"library_backend/pkg/models"
	"library_backend/pkg/seed"
)

type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *gorm.DB
	books  *catalog.Store
	people *members.Store
	ledger *lending.Ledger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Load(), logger: zap.NewNop()}
	var verbose bool

	root := &cobra.Command{
		Use:          "librarian",
		Short:        "Maintenance commands for the library backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				a.logger = logger
			}
			return a.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.Database.Driver, "db-driver", a.cfg.Database.Driver, "database driver (postgres or sqlite)")
	root.PersistentFlags().StringVar(&a.cfg.Database.Path, "db-path", a.cfg.Database.Path, "sqlite database file")
	root.PersistentFlags().IntVar(&a.cfg.Database.MaxRetries, "db-retries", 1, "connection attempts before giving up")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		a.migrateCmd(),
		a.seedCmd(),
		a.sweepCmd(),
		a.statsCmd(),
		a.createAdminCmd(),
		a.purgeSessionsCmd(),
	)
	return root
}

func (a *app) open() error {
	db, err := database.InitLibraryDB(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	if err := database.ApplyLendingRules(db, a.cfg.Lending); err != nil {
		return err
	}
	a.db = db
	a.books = catalog.NewStore(db)
	a.people = members.NewStore(db, a.cfg.SessionTTL)
	a.ledger = lending.NewLedger(db, a.books, a.people, a.cfg.Lending, a.logger)
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return err
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo members, authors and books",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := seed.Seed(cmd.Context(), a.db, a.people, a.books, a.logger); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "demo data loaded")
			return err
		},
	}
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark loans past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.ledger.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print loan counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func (a *app) createAdminCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readPassword(cmd, "Password: "); err != nil {
					return err
				}
			}
			admin, err := a.people.Register(cmd.Context(), members.Registration{
				Name:     name,
				Email:    email,
				Password: password,
				Role:     models.RoleAdmin,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", admin.Email, admin.MemberUid)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) purgeSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired login sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			purged, err := a.people.PurgeExpiredSessions(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d expired sessions removed\n", purged)
			return err
		},
	}
}

// readPassword reads a password from the terminal without echoing it.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", errors.Wrap(err, "read password")
	}
	fmt.Fprintln(cmd.ErrOrStderr())
	return strings.TrimSpace(string(bytePassword)), nil
}
