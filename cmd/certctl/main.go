// certctl is an operator CLI for the certification service. It talks to
// the database directly, so it works even when the HTTP surface is down.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"cleantransparency/backend/internal/audit"
	"cleantransparency/backend/internal/config"
	"cleantransparency/backend/internal/hitl"
	"cleantransparency/backend/internal/logging"
	"cleantransparency/backend/internal/repository"
	"cleantransparency/backend/internal/verify"
	"cleantransparency/backend/internal/workflow"
	"cleantransparency/backend/pkg/models"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:           "certctl",
		Short:         "Operate the certification workflow from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	root.AddCommand(runCmd(), resumeCmd(), verifyCmd(), trailCmd(), pendingCmd(), decideCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect loads configuration and opens the database pool.
func connect(ctx context.Context) (*config.Config, repository.Repository, func(), error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, nil, err
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return cfg, repository.NewPostgresRepository(pool), pool.Close, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runCmd() *cobra.Command {
	var rut, nombre, objeto string
	var monto float64

	cmd := &cobra.Command{
		Use:   "run <request_id>",
		Short: "Run the certification pipeline for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			scorer := &workflow.HeuristicScorer{HighAmountThreshold: cfg.Workflow.HITLMontoThreshold}
			engine := workflow.NewEngine(repo, scorer, workflow.StaticComplianceChecker{Result: true}, nil, logging.NewLogger())

			result, err := engine.Run(ctx, &models.WorkflowInput{
				RequestID:       args[0],
				ProveedorRUT:    rut,
				ProveedorNombre: nombre,
				MontoContrato:   monto,
				ObjetoContrato:  objeto,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&rut, "rut", "", "provider RUT")
	cmd.Flags().StringVar(&nombre, "nombre", "", "provider name")
	cmd.Flags().Float64Var(&monto, "monto", 0, "contract amount")
	cmd.Flags().StringVar(&objeto, "objeto", "", "contract subject")
	cmd.MarkFlagRequired("rut")
	return cmd
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <request_id>",
		Short: "Resume an approved or interrupted pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			scorer := &workflow.HeuristicScorer{HighAmountThreshold: cfg.Workflow.HITLMontoThreshold}
			engine := workflow.NewEngine(repo, scorer, workflow.StaticComplianceChecker{Result: true}, nil, logging.NewLogger())

			result, err := engine.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <certificado_id>",
		Short: "Verify a certificate against its hash chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := verify.NewVerifier(repo).Verify(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func trailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trail <request_id>",
		Short: "Print the audit trail for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			trail, err := audit.NewTrailBuilder(repo).Build(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(trail)
		},
	}
}

func pendingCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List cases awaiting human review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			cases, err := hitl.NewCoordinator(repo, logging.NewLogger()).ListPending(ctx, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cases)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func decideCmd() *cobra.Command {
	var reviewer, notes string

	cmd := &cobra.Command{
		Use:   "decide <request_id> <approve|reject|escalate>",
		Short: "Record a reviewer decision on a pending case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, repo, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			coordinator := hitl.NewCoordinator(repo, logging.NewLogger())
			result, err := coordinator.SubmitDecision(ctx, args[0], models.HITLDecision(args[1]), reviewer, notes)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer identity recorded with the decision")
	cmd.Flags().StringVar(&notes, "notes", "", "decision notes")
	cmd.MarkFlagRequired("reviewer")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			connStr := fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
			)
			pool, err := pgxpool.New(ctx, connStr)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Println("schema applied")
			return nil
		},
	}
}
