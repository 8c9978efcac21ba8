package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/contextd/internal/export"
)

// newObjectPutter is replaced in tests.
var newObjectPutter = func(cmd *cobra.Command) (export.ObjectPutter, error) {
	return export.NewS3Client(cmd.Context())
}

func newExportCmd() *cobra.Command {
	var (
		k      keyFlags
		bucket string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload conversation archives to S3",
		Long: `Copies each conversation's archive to
s3://<bucket>/<prefix>/<tenant>/<conversation>/archive.txt. The bucket and
prefix default to the export_bucket and export_prefix options.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("bucket") {
				bucket = a.cfg.ExportBucket
			}
			if !cmd.Flags().Changed("prefix") {
				prefix = a.cfg.ExportPrefix
			}
			if bucket == "" {
				return fmt.Errorf("no bucket: set export_bucket or pass --bucket")
			}

			client, err := newObjectPutter(cmd)
			if err != nil {
				return err
			}
			exp := export.New(client, a.archive, bucket, prefix, a.logger)

			var results []export.Result
			if cmd.Flags().Changed("tenant") && cmd.Flags().Changed("conversation") {
				results = []export.Result{exp.Export(cmd.Context(), k.key())}
			} else {
				results, err = exp.ExportAll(cmd.Context(), a.resolver)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", r.Key, r.Err)
				case r.Skipped:
					fmt.Fprintf(out, "SKIP  %s (empty archive)\n", r.Key)
				default:
					fmt.Fprintf(out, "OK    %s -> s3://%s/%s (%d bytes)\n", r.Key, bucket, r.Object, r.Bytes)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d archive(s) failed to export", failed)
			}
			return nil
		},
	}

	k.register(cmd)
	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Object key prefix")

	return cmd
}
