package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rkanadam/sssbcsj-api/internal/app"
	"github.com/rkanadam/sssbcsj-api/internal/export"
)

// NewExportCommand writes every signee of a domain to a CSV or XLSX file.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format  string
		output  string
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "export <domain>",
		Short: "Export every sign-up of a domain",
		Long: `Export one line per signee across every dated sheet of a domain.

The file is written to --output, or to a generated name in the current
directory. With --archive the file is also uploaded to the export bucket
and a download link is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				domain, err := lookupDomain(rt, args[0])
				if err != nil {
					return err
				}
				result, err := rt.Exports.Export(cmd.Context(), export.Request{
					Domain:  domain,
					Format:  parsed,
					Viewer:  rootOpts.viewer(),
					Archive: archive,
				})
				if err != nil {
					return err
				}
				path := output
				if path == "" {
					path = result.Filename
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(result.Data)
					return err
				}
				if err := os.WriteFile(path, result.Data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(map[string]any{
					"path":   path,
					"rows":   result.Rows,
					"format": parsed,
					"url":    result.URL,
				}, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %d sign-up(s) to %s\n", result.Rows, path)
					if result.URL != "" {
						fmt.Fprintf(w, "Download: %s\n", result.URL)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "export-format", "csv", "file format (csv|xlsx)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout")
	cmd.Flags().BoolVar(&archive, "archive", false, "upload the file to the export bucket")
	return cmd
}
