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

package database

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

// cutoffDate renders the date-only bound compared against DATE(column).
func cutoffDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ExpireSyncedBefore expires completed syncs whose sync date is on or before cutoff's date.
func (d Datasource) ExpireSyncedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	ctx, span := otel.Tracer("Purge").Start(ctx, "Expiring synced forms")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE forms
		SET status = $1, last_modified_on = $2
		WHERE status IN ($3, $4) AND synced_on IS NOT NULL AND DATE(synced_on) <= $5
	`, model.StatusExpired, model.NormalizeTime(at),
		model.StatusSynchronizationComplete, model.LegacyStatusSynchronizationComplete, cutoffDate(cutoff))
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrStorage, "Failed to expire synced forms", err)
	}
	return result.RowsAffected()
}

// ExpireStaleBefore expires forms that never synced and were created on or before cutoff's date.
func (d Datasource) ExpireStaleBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	ctx, span := otel.Tracer("Purge").Start(ctx, "Expiring stale forms")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE forms
		SET status = $1, last_modified_on = $2
		WHERE status IN ($3, $4, $5, $6) AND DATE(created_on) <= $7
	`, model.StatusExpired, model.NormalizeTime(at),
		model.StatusPendingSync, model.StatusIncomplete, model.LegacyStatusPendingSync, model.LegacyStatusIncomplete,
		cutoffDate(cutoff))
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrStorage, "Failed to expire stale forms", err)
	}
	return result.RowsAffected()
}

// ResetStuckSyncs fails syncs that have been in progress since before attemptedBefore,
// which happens when the process dies between the claim and the outcome. Each reset
// form gets an ERROR sync history entry in the same transaction.
func (d Datasource) ResetStuckSyncs(ctx context.Context, attemptedBefore, at time.Time) (int64, error) {
	ctx, span := otel.Tracer("Purge").Start(ctx, "Resetting stuck syncs")
	defer span.End()

	at = model.NormalizeTime(at)
	before := model.NormalizeTime(attemptedBefore)

	var reset int64
	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		ids, err := stuckSyncIDs(ctx, tx, before)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to find stuck syncs", err)
		}
		for _, id := range ids {
			entry := model.NewHistory(id, model.RemarkSyncException, model.HistoryError, model.CategorySync, model.SyncInterruptedMessage, at)
			if err := insertHistory(ctx, tx, entry); err != nil {
				return apierror.NewAPIError(apierror.ErrStorage, "Failed to record form history", err)
			}
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE forms
			SET status = $1, sync_flag = $2, sync_status = $3, last_modified_on = $4
			WHERE status = $5 AND sync_attempted_on < $6
		`, model.StatusFailedSync, false, model.SyncStatusFailed, at,
			model.StatusSyncInProgress, before)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to reset stuck syncs", err)
		}
		reset, err = result.RowsAffected()
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return reset, nil
}

func stuckSyncIDs(ctx context.Context, tx DBTX, before time.Time) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT form_id FROM forms WHERE status = $1 AND sync_attempted_on < $2
	`, model.StatusSyncInProgress, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
