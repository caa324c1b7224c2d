package main

import (
	"github.com/geocell-labs/coverage/internal/backups"

	"github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
)

func backupCommands(b *coverageInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "start coverage data backup",
	}

	cmd.AddCommand(backupToCommands(b))
	cmd.AddCommand(backupToS3Commands())

	return cmd
}

func backupToCommands(b *coverageInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "snapshot",
		Run: func(cmd *cobra.Command, args []string) {
			_, err := backups.Snapshot(cmd.Context(), b.cvg.CoverageStore())
			if err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}

func backupToS3Commands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			err := backups.ZipUploadToS3()
			if err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}
