// Package migrate implements the standalone migration subcommand. Deployments
// that run with --db-migrate-at-start=false apply schema changes through this
// command instead, typically from a job that runs before the new version rolls
// out.
package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/consulta/advisor-service/internal/config"
	registrymigrate "github.com/consulta/advisor-service/internal/registry/migrate"

	// Plugin imports register their migrators via init().
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
	_ "github.com/consulta/advisor-service/internal/plugin/vector/pgvector"
	_ "github.com/consulta/advisor-service/internal/plugin/vector/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Run database migrations",
		Flags:  flags(),
		Action: run,
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db-url",
			Sources:  cli.EnvVars("ADVISOR_SERVICE_DB_URL"),
			Usage:    "Database connection URL",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "db-kind",
			Sources: cli.EnvVars("ADVISOR_SERVICE_DB_KIND"),
			Usage:   "Store backend (postgres)",
			Value:   "postgres",
		},
		&cli.StringFlag{
			Name:    "vector-kind",
			Sources: cli.EnvVars("ADVISOR_SERVICE_VECTOR_KIND"),
			Usage:   "Vector store backend whose migrations should also run (pgvector|qdrant); empty skips",
		},
		&cli.StringFlag{
			Name:    "vector-qdrant-host",
			Sources: cli.EnvVars("ADVISOR_SERVICE_VECTOR_QDRANT_HOST", "ADVISOR_SERVICE_QDRANT_HOST"),
			Usage:   "Qdrant host",
			Value:   "localhost",
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	// Start from defaults so migrate-at-start stays enabled; each migrator
	// checks it before doing anything.
	cfg := config.DefaultConfig()
	cfg.DBURL = cmd.String("db-url")
	cfg.DatastoreType = cmd.String("db-kind")
	cfg.VectorType = cmd.String("vector-kind")
	cfg.QdrantHost = cmd.String("vector-qdrant-host")

	log.Info("Running migrations...")
	if err := registrymigrate.RunAll(config.WithContext(ctx, &cfg)); err != nil {
		return err
	}
	log.Info("All migrations completed successfully")
	return nil
}
