package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-nbembed/internal/publish"
)

func (a *app) newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [destination]",
		Short: "Upload the static notebook tree to S3-compatible storage",
		Long: `Publish uploads <outdir>/<marimo.output_dir> to a destination of the form
s3+https://host/bucket/prefix (or s3+http:// for local endpoints).
Without an argument publish.destination from the config is used.
Objects whose size and checksum already match are skipped.

Credentials are read from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			raw := cfg.Publish.Destination
			if len(args) == 1 {
				raw = args[0]
			}
			if raw == "" {
				return fmt.Errorf("%w: no destination given and publish.destination is empty", errUsage)
			}

			dest, err := publish.ParseDestination(raw)
			if err != nil {
				return err
			}
			client, err := publish.NewClient(dest)
			if err != nil {
				return err
			}

			report, err := publish.NewPublisher(client, dest, a.logger).Publish(cmd.Context(), cfg.StaticPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d uploaded, %d unchanged\n", dest, len(report.Uploaded), len(report.Skipped))
			return nil
		},
	}
}
