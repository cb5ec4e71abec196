package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/store/postgres"
)

// migrator is the part of *postgres.Migrator the commands drive.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

var openMigrator = func(databaseURL string) (migrator, error) {
	return postgres.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the account store schema",
		Long:  `Apply or roll back the embedded PostgreSQL migrations. The database URL comes from --database-url or DATABASE_URL.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL")

	run := func(action func(*cobra.Command, migrator) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, _ []string) error {
			url := databaseURL
			if url == "" {
				url = os.Getenv("DATABASE_URL")
			}
			if url == "" {
				return oops.Code("CONFIG_INVALID").Errorf("--database-url or DATABASE_URL is required")
			}
			m, err := openMigrator(url)
			if err != nil {
				return oops.Code("MIGRATOR_OPEN_FAILED").Wrap(err)
			}
			defer func() {
				if cerr := m.Close(); cerr != nil {
					opts.logger.Warn("closing migrator", zap.Error(cerr))
				}
			}()
			return action(c, m)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: run(func(c *cobra.Command, m migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			opts.logger.Info("migrations applied")
			c.Println("migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all account data)",
		RunE: run(func(c *cobra.Command, m migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			opts.logger.Warn("migrations rolled back")
			c.Println("migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: run(func(c *cobra.Command, m migrator) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			c.Printf("version %d dirty=%t\n", v, dirty)
			return nil
		}),
	})

	return cmd
}
