package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/nfe-ingest/internal/config"
	"github.com/turtacn/nfe-ingest/internal/domain/invoice"
	"github.com/turtacn/nfe-ingest/internal/infrastructure/source/spreadsheet"
)

// sourceFlags selects the identifier list.
type sourceFlags struct {
	path   string
	column string
	sheet  string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "ids", "", "identifier file (.xlsx, .csv or one CNPJ per line); default ingestion.identifiers_file")
	cmd.Flags().StringVar(&f.column, "column", "", "header of the CNPJ column; default ingestion.identifiers_column")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "worksheet name for .xlsx files; default first sheet")
}

func (f *sourceFlags) load(cfg config.IngestionConfig) ([]string, string, error) {
	path := firstNonEmpty(f.path, cfg.IdentifiersFile)
	values, err := spreadsheet.LoadWithOptions(path, spreadsheet.Options{
		Column: firstNonEmpty(f.column, cfg.IdentifiersColumn),
		Sheet:  firstNonEmpty(f.sheet, cfg.IdentifiersSheet),
	})
	return values, path, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IdentifierReport lists the outcome of normalizing an identifier file.
type IdentifierReport struct {
	Source   string   `json:"source"`
	Valid    []string `json:"valid"`
	Rejected []string `json:"rejected"`
}

func newIdentifierReport(source string, raw []string) IdentifierReport {
	valid, rejected := invoice.NormalizeTaxpayerIDs(raw)
	r := IdentifierReport{Source: source, Valid: make([]string, 0, len(valid)), Rejected: rejected}
	for _, id := range valid {
		r.Valid = append(r.Valid, id.String())
	}
	if r.Rejected == nil {
		r.Rejected = []string{}
	}
	return r
}

func (r IdentifierReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d valid, %d rejected\n", r.Source, len(r.Valid), len(r.Rejected))
	for _, v := range r.Valid {
		fmt.Fprintf(&sb, "  ok       %s\n", v)
	}
	for _, v := range r.Rejected {
		fmt.Fprintf(&sb, "  rejected %q\n", v)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r IdentifierReport) TableHeaders() []string { return []string{"CNPJ", "STATUS"} }

func (r IdentifierReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Valid)+len(r.Rejected))
	for _, v := range r.Valid {
		rows = append(rows, []string{v, "valid"})
	}
	for _, v := range r.Rejected {
		rows = append(rows, []string{v, "rejected"})
	}
	return rows
}

// NewIDsCmd creates the ids command.
func NewIDsCmd() *cobra.Command {
	src := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "Validate an identifier file without querying the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			raw, path, err := src.load(cliCtx.Config.Ingestion)
			if err != nil {
				return err
			}
			return PrintResult(cmd, newIdentifierReport(path, raw))
		},
	}
	src.register(cmd)
	return cmd
}
