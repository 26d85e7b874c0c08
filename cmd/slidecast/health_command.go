package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slidecast/internal/config"
	"slidecast/internal/store"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show external service health flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				flags, err := st.ListServiceHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(flags) == 0 {
					fmt.Fprintln(out, "All services healthy")
					return nil
				}

				rows := make([][]string, 0, len(flags))
				for _, flag := range flags {
					state := "healthy"
					if flag.Active {
						state = "degraded"
					}
					rows = append(rows, []string{
						flag.Service,
						state,
						truncateMessage(flag.Message, 80),
						formatTimestamp(flag.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Service", "State", "Message", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
