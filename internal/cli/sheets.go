package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rkanadam/sssbcsj-api/internal/app"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
)

// NewSheetsCommand lists the dated sheets of a domain.
func NewSheetsCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sheets <domain>",
		Short: "List the dated sign-up sheets of a domain",
		Long: `List the dated sign-up sheets of a domain (service or devotion).

Only sheets dated today or later are listed unless --all is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := signup.Upcoming
			if all {
				filter = signup.AllDates
			}
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				domain, err := lookupDomain(rt, args[0])
				if err != nil {
					return err
				}
				summaries, err := rt.Signups.Discover(cmd.Context(), domain, filter)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(summaries, func(w io.Writer) {
					if len(summaries) == 0 {
						fmt.Fprintln(w, "No sheets found")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "DATE\tDOCUMENT\tSHEET\tDOCUMENT ID")
					for _, s := range summaries {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Date.Format("2006-01-02"), s.DocumentName, s.SheetTitle, s.DocumentID)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include past sheets")
	return cmd
}

// NewShowCommand prints one sheet with every signee.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <domain> <document-id> <sheet>",
		Short: "Show a sheet's open items and signees",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				domain, err := lookupDomain(rt, args[0])
				if err != nil {
					return err
				}
				sheet, err := rt.Signups.DetailedSheet(cmd.Context(), domain, args[1], args[2], rootOpts.viewer(), true)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(sheet, func(w io.Writer) {
					writeSheet(w, sheet)
				})
			})
		},
	}
}

func writeSheet(w io.Writer, sheet signup.Sheet) {
	if sheet.Title != "" {
		fmt.Fprintf(w, "%s\n", sheet.Title)
	}
	fmt.Fprintf(w, "Date: %s\nLocation: %s\n%s\n\n", sheet.Date, sheet.Location, sheet.Description)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tOPEN ITEM\tQUANTITY\tCOUNT")
	for _, row := range sheet.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.Index, row.Item, row.Quantity, row.Count.String())
	}
	_ = tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tITEM\tCOUNT\tNAME\tEMAIL\tPHONE\tSIGNED UP")
	for _, row := range sheet.Signees {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", row.Index, row.Item, row.Count.String(), row.Name, row.Email, row.Phone, row.SignedUpOn)
	}
	_ = tw.Flush()
}
