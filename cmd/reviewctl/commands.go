package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aimerfeng/ReviewDesk/internal/app"
	"github.com/aimerfeng/ReviewDesk/internal/config"
	"github.com/aimerfeng/ReviewDesk/internal/database"
	"github.com/aimerfeng/ReviewDesk/internal/logging"
	"github.com/aimerfeng/ReviewDesk/internal/models"
	"github.com/aimerfeng/ReviewDesk/internal/review"
	"github.com/spf13/cobra"
)

type cliContext struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	cli := &cliContext{}

	root := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Operate the review store and reply workflow",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(&cfg.Logging, cfg.Server.Env)
			cli.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(cli),
		newIngestCmd(cli),
		newDraftPendingCmd(cli),
		newStatsCmd(cli),
	)
	return root
}

// withApp runs fn against freshly wired services and closes them afterwards
func (c *cliContext) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.New(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cliContext) postgresURL() (string, error) {
	if c.cfg.Database.Driver != config.DriverPostgres {
		return "", fmt.Errorf("migrations apply to the postgres driver, not %q", c.cfg.Database.Driver)
	}
	return c.cfg.Database.URL, nil
}

// --- migrate ---

func newMigrateCmd(cli *cliContext) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := cli.postgresURL()
			if err != nil {
				return err
			}
			steps, _ := cmd.Flags().GetInt("steps")
			return database.RunMigrations(url, steps)
		},
	}
	upCmd.Flags().Int("steps", 0, "number of migrations to apply (0 = all)")

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := cli.postgresURL()
			if err != nil {
				return err
			}
			steps, _ := cmd.Flags().GetInt("steps")
			return database.RollbackMigration(url, steps)
		},
	}
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back (0 = all)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := cli.postgresURL()
			if err != nil {
				return err
			}
			version, dirty, err := database.GetMigrationVersion(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}

	forceCmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without migrating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			url, err := cli.postgresURL()
			if err != nil {
				return err
			}
			return database.ForceVersion(url, version)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd)
	return migrateCmd
}

// --- ingest ---

func newIngestCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a JSON batch of reviews",
		Long: `Ingest a JSON batch of reviews, either an array or {"reviews": [...]}.

Examples:
  reviewctl ingest --file ./google.json --source Google --sync
  reviewctl ingest --file ./tripadvisor.json --source TripAdvisor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			source, _ := cmd.Flags().GetString("source")
			sync, _ := cmd.Flags().GetBool("sync")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			payloads, err := readBatch(file)
			if err != nil {
				return err
			}
			source = models.CanonicalSource(source)

			return cli.withApp(cmd.Context(), func(a *app.App) error {
				if sync {
					result, err := a.Reviews.Sync(cmd.Context(), source, payloads)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), result)
				}
				result, err := a.Reviews.Ingest(cmd.Context(), payloads, source)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().String("file", "", "path to a JSON batch ('-' for stdin)")
	cmd.Flags().String("source", models.SourceGoogle, "default source for items that do not name one")
	cmd.Flags().Bool("sync", false, "draft replies after ingesting, posting where supported")
	return cmd
}

func readBatch(path string) ([]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing batch: %w", err)
	}
	return review.ExtractPayloads(body)
}

// --- draft-pending ---

func newDraftPendingCmd(cli *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft-pending",
		Short: "Draft replies for stored reviews that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			prompt, _ := cmd.Flags().GetString("prompt")
			return cli.withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Reviews.DraftPending(cmd.Context(), limit, prompt)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().Int("limit", 0, "maximum records to draft (0 = configured default)")
	cmd.Flags().String("prompt", "", "instruction overriding the saved reply prompt")
	return cmd
}

// --- stats ---

func newStatsCmd(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print review counts and average ratings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withApp(cmd.Context(), func(a *app.App) error {
				stats, err := a.Reviews.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
