/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/formsync/internal/backups"
)

func backupCommands(b *formsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "start formsync database backup",
	}

	cmd.AddCommand(backupToCommands(b))
	cmd.AddCommand(backupToS3Commands(b))

	return cmd
}

func backupToCommands(b *formsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "drive",
		Run: func(cmd *cobra.Command, args []string) {
			path, err := backups.NewBackupManager(b.cnf).BackupToDisk(context.Background())
			if err != nil {
				logrus.Error(err)
				return
			}
			logrus.Infof("backup written to %s", path)
		},
	}

	return cmd
}

func backupToS3Commands(b *formsyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			if err := backups.NewBackupManager(b.cnf).BackupToS3(context.Background()); err != nil {
				logrus.Error(err)
				return
			}
			logrus.Info("backup uploaded to s3")
		},
	}

	return cmd
}
