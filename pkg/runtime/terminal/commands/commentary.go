package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/de-tools/variance-atlas/pkg/adapters"
	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

func NewCommentaryCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commentary",
		Short: "Generate, refresh and revise report commentary",
	}

	cmd.AddCommand(newGenerateCmd(connect, reporter))
	cmd.AddCommand(newRefreshCmd(connect, reporter))
	cmd.AddCommand(newModifyCmd(connect, reporter))

	return cmd
}

func newGenerateCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	var hint []string
	cmd := &cobra.Command{
		Use:   "generate <report>",
		Short: "Write commentary for the largest movements of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := parseSelections(hint)
			if err != nil {
				return err
			}
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			commentary, err := backend.Commentary.GenerateInitial(cmd.Context(), args[0], selections)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(adapters.MapDomainCommentaryToAPI(commentary))
			}
			return reporter.Commentary(commentary)
		},
	}
	cmd.Flags().StringArrayVar(&hint, "select", nil, "Cells to explain instead of the largest movers, as reason_code=column")
	return cmd
}

func newRefreshCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	var (
		selections []string
		columns    []string
		topN       int
	)
	cmd := &cobra.Command{
		Use:   "refresh <report>",
		Short: "Rewrite commentary for an edited set of selections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseSelections(selections)
			if err != nil {
				return err
			}
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			commentary, err := backend.Commentary.Refresh(cmd.Context(), args[0], parsed, columns, topN)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(adapters.MapDomainCommentaryToAPI(commentary))
			}
			return reporter.Commentary(commentary)
		},
	}
	cmd.Flags().StringArrayVar(&selections, "select", nil, "Summary cell as reason_code=column")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Contributing columns (default from the report)")
	cmd.Flags().IntVar(&topN, "top", 0, "Attributes kept per column (default from the report)")
	return cmd
}

func newModifyCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	var (
		instruction string
		file        string
		selections  []string
	)
	cmd := &cobra.Command{
		Use:   "modify",
		Short: "Revise commentary text following an instruction",
		Long:  "Reads the current commentary from --file, or from stdin when --file is - or empty.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseSelections(selections)
			if err != nil {
				return err
			}
			current, err := readText(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			text, err := backend.Commentary.Modify(cmd.Context(), instruction, current, parsed)
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(api.ModifyResponse{Text: text})
			}
			return reporter.Text(text)
		},
	}
	cmd.Flags().StringVar(&instruction, "instruction", "", "How the commentary should change")
	cmd.Flags().StringVar(&file, "file", "", "File holding the current commentary")
	cmd.Flags().StringArrayVar(&selections, "select", nil, "Selections the commentary explains, as reason_code=column")

	_ = cmd.MarkFlagRequired("instruction")

	return cmd
}

func readText(stdin io.Reader, file string) (string, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read commentary: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func NewAskCmd(connect Connect, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a free text question against the warehouse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := connect(cmd)
			if err != nil {
				return err
			}
			answer, err := backend.Commentary.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON(cmd) {
				return reporter.JSON(adapters.MapDomainAnswerToAPI(answer))
			}
			return reporter.Answer(answer)
		},
	}
}
