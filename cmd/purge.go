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
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// purgeCommands runs one purge pass and exits. Unset flags use the configured windows.
func purgeCommands(b *formsyncInstance) *cobra.Command {
	var syncDays, staleDays int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "expire synced and stale forms",
		Run: func(cmd *cobra.Command, args []string) {
			var syncArg, staleArg *int
			if cmd.Flags().Changed("sync-days") {
				syncArg = &syncDays
			}
			if cmd.Flags().Changed("stale-days") {
				staleArg = &staleDays
			}

			result, err := b.formsync.Purge(context.Background(), syncArg, staleArg)
			if err != nil {
				logrus.Error(err)
				return
			}
			fmt.Printf("Expired %d synced and %d stale forms\n", result.ExpiredSyncedCount, result.ExpiredStaleCount)
		},
	}
	cmd.Flags().IntVar(&syncDays, "sync-days", 0, "expire synced forms older than this many days")
	cmd.Flags().IntVar(&staleDays, "stale-days", 0, "expire unsynced forms older than this many days")

	return cmd
}
