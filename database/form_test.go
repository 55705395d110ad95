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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

func TestCreateForm_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	form := model.Form{FormType: "OPEN_ACCOUNT", Status: model.StatusPendingSync, CreatedBy: "teller01", CreatedOn: now, LastModifiedOn: now}
	entry := model.NewHistory("", model.RemarkFormCreated, model.HistorySuccess, model.CategoryCreated, "", now)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO forms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO form_history").
		WithArgs(entry.HistoryID, sqlmock.AnyArg(), sqlmock.AnyArg(), model.RemarkFormCreated, nil, model.HistorySuccess, model.CategoryCreated).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	created, err := ds.CreateForm(context.Background(), form, entry)
	assert.NoError(t, err)
	assert.Contains(t, created.FormID, "frm_")
	assert.Equal(t, model.SyncStatusNone, created.SyncStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateForm_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	form := model.Form{FormID: "frm_dup", FormType: "OPEN_ACCOUNT", Status: model.StatusPendingSync}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO forms").WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})
	mock.ExpectRollback()

	_, err = ds.CreateForm(context.Background(), form, model.History{})
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateForm_HistoryFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO forms").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO form_history").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = ds.CreateForm(context.Background(), model.Form{FormID: "frm_1"}, model.History{})
	assert.True(t, apierror.Is(err, apierror.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFormByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM forms WHERE form_id = ").
		WithArgs("frm_missing").
		WillReturnError(sql.ErrNoRows)

	form, err := ds.GetFormByID(context.Background(), "frm_missing")
	assert.Nil(t, form)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountForms_MultiStatusUsesIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM forms WHERE form_type = $1 AND status IN ($2, $3)")).
		WithArgs("OPEN_ACCOUNT", model.StatusPendingSync, model.StatusFailedSync).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := ds.CountForms(context.Background(), model.FormFilter{
		FormType: "OPEN_ACCOUNT",
		Statuses: []string{model.StatusPendingSync, model.StatusFailedSync, model.StatusPendingSync},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildFormFilter(t *testing.T) {
	synced := true
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	where, args := buildFormFilter(model.FormFilter{
		Status:         model.StatusPendingSync,
		CustomerName:   "Tan",
		SyncFlag:       &synced,
		CreatedOnStart: &start,
	})
	assert.Equal(t, " WHERE status = $1 AND LOWER(customer_name) LIKE LOWER($2) AND sync_flag = $3 AND created_on >= $4", where)
	assert.Equal(t, []interface{}{model.StatusPendingSync, "%Tan%", true, start}, args)

	where, args = buildFormFilter(model.FormFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestHardDeleteForm_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM form_history").WithArgs("frm_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM forms").WithArgs("frm_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ds.HardDeleteForm(context.Background(), "frm_1")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireSyncedBefore_UsesDateOnlyCutoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cutoff := time.Date(2024, 3, 2, 18, 45, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE forms").
		WithArgs(model.StatusExpired, sqlmock.AnyArg(), model.StatusSynchronizationComplete, model.LegacyStatusSynchronizationComplete, "2024-03-02").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := ds.ExpireSyncedBefore(context.Background(), cutoff, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireStaleBefore_StorageError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE forms").WillReturnError(errors.New("connection reset"))

	_, err = ds.ExpireStaleBefore(context.Background(), time.Now(), time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), db, func(tx DBTX) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx DBTX) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
