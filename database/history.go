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
	"database/sql"

	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

func insertHistory(ctx context.Context, q DBTX, entry model.History) error {
	if entry.HistoryID == "" {
		entry.HistoryID = model.GenerateUUIDWithSuffix("hst")
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO form_history (history_id, form_id, created_on, remark, error_message, status, category_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.HistoryID, entry.FormID, model.NormalizeTime(entry.CreatedOn), entry.Remark,
		nullString(entry.ErrorMessage), entry.Status, nullString(entry.CategoryCode))
	return err
}

func (d Datasource) RecordHistory(ctx context.Context, entry model.History) error {
	ctx, span := otel.Tracer("History").Start(ctx, "Saving history to db")
	defer span.End()

	if err := insertHistory(ctx, d.Conn, entry); err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrStorage, "Failed to record form history", err)
	}
	return nil
}

func (d Datasource) GetHistoryByFormID(ctx context.Context, formID string) ([]model.History, error) {
	ctx, span := otel.Tracer("History").Start(ctx, "Fetching history from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT history_id, form_id, created_on, remark, error_message, status, category_code
		FROM form_history
		WHERE form_id = $1
		ORDER BY created_on DESC, history_id DESC
	`, formID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrStorage, "Failed to retrieve form history", err)
	}
	defer rows.Close()

	entries := []model.History{}
	for rows.Next() {
		var (
			h                        model.History
			remark, errMsg, category sql.NullString
		)
		if err := rows.Scan(&h.HistoryID, &h.FormID, &h.CreatedOn, &remark, &errMsg, &h.Status, &category); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrStorage, "Failed to scan history data", err)
		}
		h.CreatedOn = h.CreatedOn.UTC()
		h.Remark = remark.String
		h.ErrorMessage = errMsg.String
		h.CategoryCode = category.String
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorage, "Error occurred while iterating over history", err)
	}
	return entries, nil
}

func (d Datasource) DeleteHistoryByFormID(ctx context.Context, formID string) (int64, error) {
	ctx, span := otel.Tracer("History").Start(ctx, "Deleting history from db")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `DELETE FROM form_history WHERE form_id = $1`, formID)
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrStorage, "Failed to delete form history", err)
	}
	return result.RowsAffected()
}
