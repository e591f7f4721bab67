package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errBackupsDisabled = errors.New("backups are not configured (set BACKUP_S3_BUCKET and credentials)")

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a database snapshot and rotate old backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jobs.Backup == nil {
				return errBackupsDisabled
			}
			return a.container.JobScheduler.RunNow(a.jobs.Backup)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List uploaded backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.container.BackupService == nil {
				return errBackupsDisabled
			}
			backups, err := a.container.BackupService.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), backups)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "maintain",
		Short: "Run the integrity check, WAL checkpoint and disk space check now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.container.JobScheduler.RunNow(a.jobs.Maintenance)
		},
	})

	return cmd
}
