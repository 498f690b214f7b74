package commands

import (
	"github.com/de-tools/variance-atlas/pkg/adapters"
	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

const JSONFlag = "json"

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool(JSONFlag)
	return v
}

func NewReportsCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List configured reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			reports := backend.Commentary.Reports()
			if asJSON(cmd) {
				out := make([]api.Report, 0, len(reports))
				for _, r := range reports {
					out = append(out, adapters.MapDomainReportToAPI(r))
				}
				return reporter.JSON(out)
			}
			return reporter.Reports(reports)
		},
	}
}

func NewPeriodsCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "periods <report>",
		Short: "Show the current, previous and year-ago periods of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			periods, err := backend.Commentary.Periods(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(adapters.MapDomainPeriodsToAPI(periods))
			}
			return reporter.Periods(periods)
		},
	}
}

func NewSummaryCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <report>",
		Short: "Print the per reason code summary table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			table, err := backend.Commentary.Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(adapters.MapDomainSummaryToAPI(table))
			}
			return reporter.Summary(table)
		},
	}
}

type AttributeCmd struct {
	selections []string
	columns    []string
	topN       int
	connect    Connect
	reporter   *export.Reporter
}

func NewAttributeCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	ac := &AttributeCmd{connect: connect, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "attribute <report>",
		Short: "Break selected summary cells down by contributing attribute",
		Args:  cobra.ExactArgs(1),
		RunE:  ac.run,
	}

	cmd.Flags().StringArrayVar(&ac.selections, "select", nil, `Summary cell as reason_code=column, e.g. "Tax=Q/Q $"`)
	cmd.Flags().StringSliceVar(&ac.columns, "columns", nil, "Contributing columns (default from the report)")
	cmd.Flags().IntVar(&ac.topN, "top", 0, "Attributes kept per column (default from the report)")

	_ = cmd.MarkFlagRequired("select")

	return cmd
}

func (ac *AttributeCmd) run(cmd *cobra.Command, args []string) error {
	selections, err := parseSelections(ac.selections)
	if err != nil {
		return err
	}
	backend, err := ac.connect(cmd)
	if err != nil {
		return err
	}

	attributions, err := backend.Commentary.Attribute(cmd.Context(), args[0], selections, ac.columns, ac.topN)
	if err != nil {
		return err
	}
	if asJSON(cmd) {
		return ac.reporter.JSON(adapters.MapDomainAttributionsToAPI(attributions))
	}
	return ac.reporter.Attributions(attributions)
}
