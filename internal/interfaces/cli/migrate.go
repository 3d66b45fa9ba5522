package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/nfe-ingest/internal/infrastructure/database/postgres"
)

// MigrationResult is the output of the migrate command.
type MigrationResult struct {
	Action  string `json:"action"`
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
}

func (r MigrationResult) String() string {
	return fmt.Sprintf("%s: schema version %d (dirty=%t)", r.Action, r.Version, r.Dirty)
}

// NewMigrateCmd creates the migrate command for the Postgres ledger schema.
func NewMigrateCmd() *cobra.Command {
	var (
		rollback int
		status   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres ledger schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			conn, err := openPostgres(cliCtx.Config.Ledger.Postgres, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			var (
				action string
				st     *postgres.MigrationStatus
			)
			switch {
			case status:
				action = "status"
				st, err = conn.Status()
			case rollback > 0:
				action = fmt.Sprintf("rollback %d", rollback)
				st, err = conn.Rollback(rollback)
			default:
				action = "up"
				st, err = conn.Migrate()
			}
			if err != nil {
				return err
			}
			return PrintResult(cmd, MigrationResult{Action: action, Version: st.Version, Dirty: st.Dirty})
		},
	}

	cmd.Flags().IntVar(&rollback, "rollback", 0, "roll back N migrations instead of applying")
	cmd.Flags().BoolVar(&status, "status", false, "print the current schema version only")
	return cmd
}
