package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ludolens/internal/config"
	"ludolens/internal/storage"
)

// opener connects to the database named by dsn.
type opener func(ctx context.Context, dsn string) (storage.TxStarter, func(), error)

func openPool(ctx context.Context, dsn string) (storage.TxStarter, func(), error) {
	db, err := storage.NewDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db.Pool, db.Close, nil
}

func newRootCmd(open opener) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ludolens database schema",
	}
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres connection string (defaults to LUDOLENS_POSTGRES_URL)")

	connect := func(cmd *cobra.Command) (storage.TxStarter, func(), error) {
		url := dsn
		if url == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, nil, err
			}
			url = cfg.PostgresURL
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		conn, closeFn, err := open(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate: connect database: %w", err)
		}
		return conn, closeFn, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up [version]",
		Short: "Apply pending migrations, or re-run one version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			var opts []storage.MigrateOption
			if len(args) == 1 {
				opts = append(opts, storage.WithVersion(args[0]))
			}
			applied, err := storage.ApplyMigrations(cmd.Context(), conn, storage.Migrations(), opts...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "migrate: schema is up to date")
				return nil
			}
			for _, m := range applied {
				fmt.Fprintf(out, "migrate: applied %s\n", m.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := storage.Status(cmd.Context(), conn, storage.Migrations())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tSTATE\tEXECUTED AT")
			for _, a := range status.Applied {
				fmt.Fprintf(tw, "%s\t%s\tapplied\t%s\n", a.Version, a.Name, a.ExecutedAt.UTC().Format(time.RFC3339))
			}
			for _, p := range status.Pending {
				fmt.Fprintf(tw, "%s\t%s\tpending\t-\n", p.Version, p.Name)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func main() {
	_ = godotenv.Load(".env")
	if err := newRootCmd(openPool).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
