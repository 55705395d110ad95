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
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

const formColumns = `form_id, remote_id, reference_number, payload, form_type, form_category,
	sync_flag, sync_status, status, created_by, created_on, last_modified_by, last_modified_on,
	synced_on, sync_attempted_on, deleted_by, deleted_on, customer_name, customer_id, branch,
	date_of_birth, country_of_origin, id_type`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanForm(row rowScanner) (model.Form, error) {
	var (
		f                                          model.Form
		remoteID, refNo, category, modifiedBy      sql.NullString
		deletedBy, customerName, customerID        sql.NullString
		branch, dob, country, idType               sql.NullString
		modifiedOn, syncedOn, attemptedOn, deleted sql.NullTime
	)

	err := row.Scan(
		&f.FormID, &remoteID, &refNo, &f.Payload, &f.FormType, &category,
		&f.SyncFlag, &f.SyncStatus, &f.Status, &f.CreatedBy, &f.CreatedOn, &modifiedBy, &modifiedOn,
		&syncedOn, &attemptedOn, &deletedBy, &deleted, &customerName, &customerID, &branch,
		&dob, &country, &idType,
	)
	if err != nil {
		return f, err
	}

	f.RemoteID = remoteID.String
	f.ReferenceNumber = refNo.String
	f.FormCategory = category.String
	f.LastModifiedBy = modifiedBy.String
	f.DeletedBy = deletedBy.String
	f.CustomerName = customerName.String
	f.CustomerID = customerID.String
	f.Branch = branch.String
	f.DateOfBirth = dob.String
	f.CountryOfOrigin = country.String
	f.IDType = idType.String

	f.CreatedOn = f.CreatedOn.UTC()
	if modifiedOn.Valid {
		f.LastModifiedOn = modifiedOn.Time.UTC()
	}
	f.SyncedOn = timePtr(syncedOn)
	f.SyncAttemptedOn = timePtr(attemptedOn)
	f.DeletedOn = timePtr(deleted)
	return f, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return model.NormalizeTime(*t)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (d Datasource) CreateForm(ctx context.Context, form model.Form, entry model.History) (model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Saving form to db")
	defer span.End()

	if form.FormID == "" {
		form.FormID = model.GenerateUUIDWithSuffix("frm")
	}
	if form.SyncStatus == "" {
		form.SyncStatus = model.SyncStatusNone
	}
	form.CreatedOn = model.NormalizeTime(form.CreatedOn)
	form.LastModifiedOn = model.NormalizeTime(form.LastModifiedOn)
	entry.FormID = form.FormID

	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO forms (`+formColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		`,
			form.FormID, nullString(form.RemoteID), nullString(form.ReferenceNumber), form.Payload, form.FormType, nullString(form.FormCategory),
			form.SyncFlag, form.SyncStatus, form.Status, form.CreatedBy, form.CreatedOn, nullString(form.LastModifiedBy), form.LastModifiedOn,
			nullTime(form.SyncedOn), nullTime(form.SyncAttemptedOn), nullString(form.DeletedBy), nullTime(form.DeletedOn),
			nullString(form.CustomerName), nullString(form.CustomerID), nullString(form.Branch),
			nullString(form.DateOfBirth), nullString(form.CountryOfOrigin), nullString(form.IDType),
		)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return model.Form{}, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("form with id %s already exists", form.FormID), err)
		}
		return model.Form{}, apierror.NewAPIError(apierror.ErrStorage, "Failed to create form", err)
	}

	return form, nil
}

func (d Datasource) GetFormByID(ctx context.Context, id string) (*model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Fetching form from db")
	defer span.End()

	form, err := getForm(ctx, d.Conn, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return form, nil
}

func getForm(ctx context.Context, q DBTX, id string) (*model.Form, error) {
	row := q.QueryRowContext(ctx, `SELECT `+formColumns+` FROM forms WHERE form_id = $1`, id)
	form, err := scanForm(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("form with id %s not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrStorage, "Failed to retrieve form", err)
	}
	return &form, nil
}

// buildFormFilter renders the WHERE clause of a search. Placeholders start at $1
// and are numbered in order of appearance.
func buildFormFilter(filter model.FormFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.FormType != "" {
		add("form_type = ?", filter.FormType)
	}
	if statuses := filter.UniqueStatuses(); len(statuses) > 1 {
		placeholders := make([]string, 0, len(statuses))
		for _, s := range statuses {
			args = append(args, s)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	} else if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.CustomerName != "" {
		add("LOWER(customer_name) LIKE LOWER(?)", "%"+filter.CustomerName+"%")
	}
	if filter.CustomerID != "" {
		add("customer_id = ?", filter.CustomerID)
	}
	if filter.FormCategory != "" {
		add("form_category = ?", filter.FormCategory)
	}
	if filter.SyncFlag != nil {
		add("sync_flag = ?", *filter.SyncFlag)
	}
	if filter.CreatedOnStart != nil {
		add("created_on >= ?", model.NormalizeTime(*filter.CreatedOnStart))
	}
	if filter.CreatedOnEnd != nil {
		add("created_on <= ?", model.NormalizeTime(*filter.CreatedOnEnd))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// SearchForms returns forms newest first. A multi-status filter is served as the
// union of one query per status, de-duplicated by id before paging.
func (d Datasource) SearchForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Searching forms in db")
	defer span.End()

	filter = filter.Normalize()
	if offset < 0 {
		offset = 0
	}

	if !filter.IsMultiStatus() {
		forms, err := d.queryForms(ctx, filter, limit, offset)
		if err != nil {
			span.RecordError(err)
		}
		return forms, err
	}

	// each status only needs its first offset+limit rows to cover the page
	window := 0
	if limit > 0 {
		window = offset + limit
	}

	seen := make(map[string]bool)
	merged := []model.Form{}
	for _, status := range filter.UniqueStatuses() {
		forms, err := d.queryForms(ctx, filter.ForStatus(status), window, 0)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, f := range forms {
			if seen[f.FormID] {
				continue
			}
			seen[f.FormID] = true
			merged = append(merged, f)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedOn.Equal(merged[j].CreatedOn) {
			return merged[i].FormID > merged[j].FormID
		}
		return merged[i].CreatedOn.After(merged[j].CreatedOn)
	})

	if offset >= len(merged) {
		return []model.Form{}, nil
	}
	end := len(merged)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return merged[offset:end], nil
}

func (d Datasource) queryForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, error) {
	where, args := buildFormFilter(filter)
	query := `SELECT ` + formColumns + ` FROM forms` + where + ` ORDER BY created_on DESC, form_id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorage, "Failed to search forms", err)
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrStorage, "Failed to scan form data", err)
		}
		forms = append(forms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrStorage, "Error occurred while iterating over forms", err)
	}
	return forms, nil
}

// CountForms counts matching forms. A form has exactly one status, so the
// multi-status union is counted with a single IN clause.
func (d Datasource) CountForms(ctx context.Context, filter model.FormFilter) (int64, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Counting forms in db")
	defer span.End()

	where, args := buildFormFilter(filter.Normalize())
	var count int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM forms`+where, args...).Scan(&count)
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrStorage, "Failed to count forms", err)
	}
	return count, nil
}

// UpdateForm rewrites the descriptive fields and payload. The status only moves
// between INCOMPLETE and PENDING_SYNC; sync state is never reverted.
func (d Datasource) UpdateForm(ctx context.Context, form model.Form, entry model.History) (*model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Updating form in db")
	defer span.End()

	var updated *model.Form
	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE forms
			SET payload = $1, form_type = $2, form_category = $3, customer_name = $4, customer_id = $5,
				branch = $6, date_of_birth = $7, country_of_origin = $8, id_type = $9,
				status = CASE WHEN status IN ('INCOMPLETE', 'PENDING_SYNC') THEN $10 ELSE status END,
				last_modified_by = $11, last_modified_on = $12
			WHERE form_id = $13
		`,
			form.Payload, form.FormType, nullString(form.FormCategory), nullString(form.CustomerName), nullString(form.CustomerID),
			nullString(form.Branch), nullString(form.DateOfBirth), nullString(form.CountryOfOrigin), nullString(form.IDType),
			form.Status, nullString(form.LastModifiedBy), model.NormalizeTime(form.LastModifiedOn), form.FormID,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to update form", err)
		}
		if err := expectRow(result, form.FormID); err != nil {
			return err
		}

		entry.FormID = form.FormID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to record form history", err)
		}

		updated, err = getForm(ctx, tx, form.FormID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

// SoftDeleteForm marks the form cancelled. Re-cancelling succeeds and re-stamps the deletion.
func (d Datasource) SoftDeleteForm(ctx context.Context, id, actor string, at time.Time, entry model.History) (*model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Cancelling form in db")
	defer span.End()

	at = model.NormalizeTime(at)
	var cancelled *model.Form
	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE forms
			SET status = $1, deleted_by = $2, deleted_on = $3, last_modified_by = $4, last_modified_on = $5
			WHERE form_id = $6
		`, model.StatusCancelled, nullString(actor), at, nullString(actor), at, id)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to cancel form", err)
		}
		if err := expectRow(result, id); err != nil {
			return err
		}

		entry.FormID = id
		if err := insertHistory(ctx, tx, entry); err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to record form history", err)
		}

		cancelled, err = getForm(ctx, tx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cancelled, nil
}

// HardDeleteForm removes the form and its history. It is irreversible.
func (d Datasource) HardDeleteForm(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("Form").Start(ctx, "Deleting form from db")
	defer span.End()

	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM form_history WHERE form_id = $1`, id); err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to delete form history", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM forms WHERE form_id = $1`, id)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to delete form", err)
		}
		return expectRow(result, id)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ClaimFormForSync moves a PENDING_SYNC or FAILED_SYNC form to SYNC_IN_PROGRESS.
// Only one caller can win the claim for a given form.
func (d Datasource) ClaimFormForSync(ctx context.Context, id, actor string, at time.Time) (*model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Claiming form for sync")
	defer span.End()

	at = model.NormalizeTime(at)
	var claimed *model.Form
	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE forms
			SET status = $1, sync_attempted_on = $2, last_modified_by = $3, last_modified_on = $4
			WHERE form_id = $5 AND status IN ($6, $7)
		`, model.StatusSyncInProgress, at, nullString(actor), at, id, model.StatusPendingSync, model.StatusFailedSync)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to claim form for sync", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to claim form for sync", err)
		}
		if affected == 0 {
			current, err := getForm(ctx, tx, id)
			if err != nil {
				return err
			}
			if model.IsTerminal(current.Status) {
				return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("form %s is %s and can no longer be synced", id, current.Status), nil)
			}
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("form %s cannot be synced from status %s", id, current.Status), nil)
		}

		claimed, err = getForm(ctx, tx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return claimed, nil
}

// RecordSyncOutcome writes the reconciled sync state and its history entry.
// Remote identifiers and synced_on keep their previous values when the outcome carries none.
// The status is only moved while the form is still SYNC_IN_PROGRESS; a form cancelled
// during the remote call keeps its status and only gains the remote identifiers and history.
func (d Datasource) RecordSyncOutcome(ctx context.Context, outcome model.SyncOutcome) (*model.Form, error) {
	ctx, span := otel.Tracer("Form").Start(ctx, "Recording sync outcome")
	defer span.End()

	at := model.NormalizeTime(outcome.At)
	var syncedOn interface{}
	if outcome.SyncFlag {
		syncedOn = at
	}

	var synced *model.Form
	err := WithTx(ctx, d.Conn, func(tx DBTX) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE forms
			SET status = $1, sync_flag = $2, sync_status = $3,
				remote_id = COALESCE($4, remote_id), reference_number = COALESCE($5, reference_number),
				synced_on = COALESCE($6, synced_on), sync_attempted_on = $7,
				last_modified_by = $8, last_modified_on = $9
			WHERE form_id = $10 AND status = $11
		`,
			outcome.Status, outcome.SyncFlag, outcome.SyncStatus,
			nullString(outcome.RemoteID), nullString(outcome.ReferenceNumber),
			syncedOn, at, nullString(outcome.Actor), at, outcome.FormID, model.StatusSyncInProgress,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to record sync outcome", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to read affected rows", err)
		}
		if affected == 0 {
			result, err = tx.ExecContext(ctx, `
				UPDATE forms
				SET remote_id = COALESCE($1, remote_id), reference_number = COALESCE($2, reference_number),
					sync_attempted_on = $3
				WHERE form_id = $4
			`, nullString(outcome.RemoteID), nullString(outcome.ReferenceNumber), at, outcome.FormID)
			if err != nil {
				return apierror.NewAPIError(apierror.ErrStorage, "Failed to record sync outcome", err)
			}
			if err := expectRow(result, outcome.FormID); err != nil {
				return err
			}
			logrus.WithField("form_id", outcome.FormID).Warn("form left SYNC_IN_PROGRESS during sync, status kept")
		}

		entry := outcome.History
		entry.FormID = outcome.FormID
		if err := insertHistory(ctx, tx, entry); err != nil {
			return apierror.NewAPIError(apierror.ErrStorage, "Failed to record form history", err)
		}

		synced, err = getForm(ctx, tx, outcome.FormID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return synced, nil
}

func expectRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrStorage, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("form with id %s not found", id), nil)
	}
	return nil
}
