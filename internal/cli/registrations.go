package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkanadam/sssbcsj-api/internal/app"
)

// NewRegistrationsCommand groups the registration sheet commands.
func NewRegistrationsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registrations",
		Short: "Search and index the registration sheet",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Find registrations containing the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				if !rt.Registrations.IsConfigured() {
					return fmt.Errorf("registration sheet not configured")
				}
				rows, err := rt.Registrations.Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(rows, func(w io.Writer) {
					if len(rows) == 0 {
						fmt.Fprintln(w, "No registrations found")
						return
					}
					for _, row := range rows {
						fmt.Fprintln(w, strings.Join(trimRight(row), " | "))
					}
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reindex",
		Short: "Push every registration into the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				if !rt.Registrations.IsConfigured() {
					return fmt.Errorf("registration sheet not configured")
				}
				if !rt.Registrations.IndexHealthy() {
					return fmt.Errorf("search index unavailable")
				}
				if err := rt.Registrations.Reindex(cmd.Context()); err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(map[string]any{"reindexed": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Registrations reindexed")
				})
			})
		},
	})
	return cmd
}

// trimRight drops trailing empty cells.
func trimRight(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	return cells[:end]
}
