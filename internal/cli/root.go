// Package cli is the signupctl operator command line. It drives the same
// services as the HTTP API, acting as an admin.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rkanadam/sssbcsj-api/internal/app"
	"github.com/rkanadam/sssbcsj-api/internal/signup"
)

// Loader builds the runtime the commands operate on.
type Loader func(ctx context.Context) (*app.Runtime, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	// Operator is the email recorded as the acting admin.
	Operator string
	Load     Loader
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for signupctl.
func NewRootCommand(load Loader, operator string) *cobra.Command {
	opts := &RootOptions{Load: load, Operator: operator}

	cmd := &cobra.Command{
		Use:   "signupctl",
		Short: "Operate the sign-up ledger",
		Long:  "Inspect sign-up sheets, export sign-ups, send notifications and search registrations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Operator, "operator", operator, "email recorded as the acting admin")

	cmd.AddCommand(NewSheetsCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewRegistrationsCommand(opts))

	return cmd
}

// withRuntime loads the runtime, runs fn and releases the runtime.
func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(rt *app.Runtime) error) error {
	if opts.Load == nil {
		return fmt.Errorf("no runtime loader configured")
	}
	rt, err := opts.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load runtime: %w", err)
	}
	defer rt.Close()
	return fn(rt)
}

func lookupDomain(rt *app.Runtime, name string) (signup.Domain, error) {
	domain, ok := rt.Domains.Lookup(name)
	if !ok {
		names := make([]string, 0, len(rt.Domains))
		for n := range rt.Domains {
			names = append(names, n)
		}
		slices.Sort(names)
		return signup.Domain{}, fmt.Errorf("unknown domain %q: must be one of %v", name, names)
	}
	return domain, nil
}

func (o *RootOptions) viewer() signup.Viewer {
	return signup.Viewer{Caller: signup.Caller{Name: "signupctl", Email: o.Operator}, IsAdmin: true}
}
