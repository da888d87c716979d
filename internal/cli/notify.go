package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkanadam/sssbcsj-api/internal/app"
)

// NewNotifyCommand groups the ad-hoc notification commands.
func NewNotifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send ad-hoc SMS or email",
	}
	cmd.AddCommand(newNotifySMSCommand(rootOpts))
	cmd.AddCommand(newNotifyEmailCommand(rootOpts))
	return cmd
}

func newNotifySMSCommand(rootOpts *RootOptions) *cobra.Command {
	var to []string
	cmd := &cobra.Command{
		Use:   "sms <message>",
		Short: "Text a message to every --to number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				if err := rt.Notifier.SendSMS(cmd.Context(), to, args[0]); err != nil {
					return fmt.Errorf("send sms: %w", err)
				}
				return reportSent(rootOpts, cmd, "sms", to)
			})
		},
	}
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient phone numbers")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newNotifyEmailCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		to       []string
		subject  string
		body     string
		template string
		params   string
	)
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Email every --to address",
		Long: `Email every --to address, either a plain --subject and --body or a
named --template rendered with the JSON object in --params.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var values map[string]any
			if template == "" && (strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "") {
				return errors.New("either --template or both --subject and --body are required")
			}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &values); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}
			return withRuntime(cmd, rootOpts, func(rt *app.Runtime) error {
				var err error
				if template != "" {
					err = rt.Notifier.SendTemplatedMessage(cmd.Context(), to, template, values)
				} else {
					err = rt.Notifier.SendPlainMessage(cmd.Context(), to, subject, body)
				}
				if err != nil {
					return fmt.Errorf("send email: %w", err)
				}
				return reportSent(rootOpts, cmd, "email", to)
			})
		},
	}
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient email addresses")
	cmd.Flags().StringVar(&subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&body, "body", "", "plain text body")
	cmd.Flags().StringVar(&template, "template", "", "template name")
	cmd.Flags().StringVar(&params, "params", "", "template parameters as a JSON object")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reportSent(rootOpts *RootOptions, cmd *cobra.Command, channel string, to []string) error {
	return newFormatter(rootOpts, cmd.OutOrStdout()).emit(map[string]any{
		"channel":    channel,
		"recipients": to,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "Sent %s to %d recipient(s)\n", channel, len(to))
	})
}
