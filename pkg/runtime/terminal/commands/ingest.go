package commands

import (
	"github.com/de-tools/variance-atlas/pkg/adapters"
	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/variance-atlas/pkg/services/ingest"
	"github.com/spf13/cobra"
)

type IngestCmd struct {
	table        string
	mode         string
	amountColumn string
	connect      Connect
	reporter     *export.Reporter
}

func NewIngestCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	ic := &IngestCmd{connect: connect, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "ingest <source>",
		Short: "Load a CSV or XLSX ledger file into the warehouse",
		Long:  "The source is a local path or an s3://bucket/key URI.",
		Args:  cobra.ExactArgs(1),
		RunE:  ic.run,
	}

	cmd.Flags().StringVar(&ic.table, "table", "", "Destination table")
	cmd.Flags().StringVar(&ic.mode, "mode", string(ingest.ModeAppend), "What to do when the table exists: append, replace or fail")
	cmd.Flags().StringVar(&ic.amountColumn, "amount-column", "Amount", "Column stored as a number")

	_ = cmd.MarkFlagRequired("table")

	cmd.AddCommand(newRunsCmd(connect, reporter))

	return cmd
}

func (ic *IngestCmd) run(cmd *cobra.Command, args []string) error {
	mode, err := ingest.ParseMode(ic.mode)
	if err != nil {
		return err
	}
	backend, err := ic.connect(cmd)
	if err != nil {
		return err
	}

	res, err := backend.Ingest.Load(cmd.Context(), ingest.Request{
		Source:       args[0],
		Table:        ic.table,
		Mode:         mode,
		AmountColumn: ic.amountColumn,
	})
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return ic.reporter.JSON(res)
	}
	return ic.reporter.Ingested(res)
}

func newRunsCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			runs, err := backend.Ingest.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				out := make([]api.IngestRun, 0, len(runs))
				for _, r := range runs {
					out = append(out, adapters.MapStoreIngestRunToAPI(r))
				}
				return reporter.JSON(out)
			}
			return reporter.Runs(runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show, 0 for all")
	return cmd
}
