package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/devinsights/internal/usecase"
)

type validationRow struct {
	OrganizationID string
	Result         usecase.CockpitValidation
	Err            error
}

func newValidateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate ORGANIZATION_ID...",
		Short: "Check which organizations have pull request data in the warehouse.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := bootstrap(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer deps.close()

			uc := usecase.NewCockpitUseCase(deps.warehouse, deps.logger)
			rows := make([]validationRow, 0, len(args))
			failed := 0
			for _, org := range args {
				result, err := uc.Validate(cmd.Context(), org)
				if err != nil {
					failed++
					deps.logger.Warn("validation failed", zap.String("organization_id", org), zap.Error(err))
				}
				rows = append(rows, validationRow{OrganizationID: org, Result: result, Err: err})
			}

			if err := writeValidationTable(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d organizations could not be checked", failed, len(rows))
			}
			return nil
		},
	}
}

// writeValidationTable renders one line per organization.
func writeValidationTable(w io.Writer, rows []validationRow) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Organization", "Has Data", "Pull Requests", "Error"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		data = append(data, []string{
			r.OrganizationID,
			strconv.FormatBool(r.Result.HasData),
			strconv.FormatInt(r.Result.PullRequestsCount, 10),
			errText,
		})
	}
	if err := table.Bulk(data); err != nil {
		return fmt.Errorf("write validation table: %w", err)
	}
	return table.Render()
}
