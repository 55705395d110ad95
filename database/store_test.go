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
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

func newTestDatasource(t *testing.T) *Datasource {
	t.Helper()
	ds, err := NewSQLiteDataSource(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func seedForm(t *testing.T, ds *Datasource, status string, createdOn time.Time) model.Form {
	t.Helper()
	form := model.Form{
		FormID:         model.GenerateUUIDWithSuffix("frm"),
		Payload:        `{"email":"` + gofakeit.Email() + `"}`,
		FormType:       "OPEN_ACCOUNT",
		FormCategory:   "CASA",
		Status:         status,
		CreatedBy:      gofakeit.Username(),
		CreatedOn:      createdOn,
		LastModifiedOn: createdOn,
		CustomerName:   gofakeit.Name(),
		CustomerID:     gofakeit.Numerify("C######"),
	}
	if status == model.StatusSynchronizationComplete {
		form.SyncFlag = true
		form.SyncStatus = model.SyncStatusSuccess
		form.SyncedOn = &createdOn
	}
	created, err := ds.CreateForm(context.Background(), form,
		model.NewHistory(form.FormID, model.RemarkFormCreated, model.HistorySuccess, model.CategoryCreated, "", createdOn))
	require.NoError(t, err)
	return created
}

func countRows(t *testing.T, ds *Datasource, table, formID string) int {
	t.Helper()
	var n int
	require.NoError(t, ds.Conn.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE form_id = $1`, formID).Scan(&n))
	return n
}

func TestStore_CreateWritesExactlyOneHistory(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())

	history, err := ds.GetHistoryByFormID(context.Background(), form.FormID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.RemarkFormCreated, history[0].Remark)
	assert.Equal(t, model.CategoryCreated, history[0].CategoryCode)

	stored, err := ds.GetFormByID(context.Background(), form.FormID)
	require.NoError(t, err)
	assert.Equal(t, form.CustomerName, stored.CustomerName)
	assert.Equal(t, model.SyncStatusNone, stored.SyncStatus)
	assert.False(t, stored.SyncFlag)
	assert.Nil(t, stored.SyncedOn)
	assert.True(t, form.CreatedOn.Equal(stored.CreatedOn))
}

func TestStore_FailedCreateLeavesNothingBehind(t *testing.T) {
	ds := newTestDatasource(t)
	first := seedForm(t, ds, model.StatusPendingSync, time.Now())
	firstHistory, err := ds.GetHistoryByFormID(context.Background(), first.FormID)
	require.NoError(t, err)

	// the history id collides, so the whole create must roll back
	second := model.Form{FormID: "frm_second", FormType: "OPEN_ACCOUNT", Status: model.StatusPendingSync, CreatedBy: "u", CreatedOn: time.Now()}
	entry := firstHistory[0]
	_, err = ds.CreateForm(context.Background(), second, entry)
	require.Error(t, err)

	_, err = ds.GetFormByID(context.Background(), "frm_second")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.Equal(t, 0, countRows(t, ds, "form_history", "frm_second"))
}

func TestStore_DuplicateIDIsConflict(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())

	_, err := ds.CreateForm(context.Background(), form,
		model.NewHistory(form.FormID, model.RemarkFormCreated, model.HistorySuccess, model.CategoryCreated, "", time.Now()))
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Equal(t, 1, countRows(t, ds, "form_history", form.FormID))
}

func TestStore_UpdateMovesBetweenIncompleteAndPending(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusIncomplete, time.Now())

	form.Status = model.StatusPendingSync
	form.Payload = `{"email":"new@bank.my"}`
	form.LastModifiedBy = "supervisor"
	form.LastModifiedOn = time.Now()
	updated, err := ds.UpdateForm(context.Background(), form,
		model.NewHistory(form.FormID, model.RemarkFormUpdated, model.HistorySuccess, model.CategoryUpdated, "", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingSync, updated.Status)
	assert.Equal(t, `{"email":"new@bank.my"}`, updated.Payload)
	assert.Equal(t, "supervisor", updated.LastModifiedBy)
	assert.Equal(t, 2, countRows(t, ds, "form_history", form.FormID))
}

func TestStore_UpdateNeverRevertsSyncState(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusSynchronizationComplete, time.Now())

	form.Status = model.StatusIncomplete
	form.Branch = "KL Main"
	updated, err := ds.UpdateForm(context.Background(), form,
		model.NewHistory(form.FormID, model.RemarkFormUpdated, model.HistorySuccess, model.CategoryUpdated, "", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSynchronizationComplete, updated.Status)
	assert.True(t, updated.SyncFlag)
	assert.Equal(t, model.SyncStatusSuccess, updated.SyncStatus)
	assert.Equal(t, "KL Main", updated.Branch)
}

func TestStore_UpdateMissingFormWritesNoHistory(t *testing.T) {
	ds := newTestDatasource(t)

	_, err := ds.UpdateForm(context.Background(), model.Form{FormID: "frm_missing", Status: model.StatusPendingSync},
		model.NewHistory("frm_missing", model.RemarkFormUpdated, model.HistorySuccess, model.CategoryUpdated, "", time.Now()))
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	assert.Equal(t, 0, countRows(t, ds, "form_history", "frm_missing"))
}

func TestStore_SoftDeleteIsIdempotent(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())

	first := time.Now().Add(-time.Minute)
	cancelled, err := ds.SoftDeleteForm(context.Background(), form.FormID, "teller01", first,
		model.NewHistory(form.FormID, model.RemarkFormDeleted, model.HistorySuccess, model.CategoryDeleted, "", first))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	second := time.Now()
	cancelled, err = ds.SoftDeleteForm(context.Background(), form.FormID, "teller02", second,
		model.NewHistory(form.FormID, model.RemarkFormDeleted, model.HistorySuccess, model.CategoryDeleted, "", second))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "teller02", cancelled.DeletedBy)
	require.NotNil(t, cancelled.DeletedOn)
	assert.True(t, model.NormalizeTime(second).Equal(*cancelled.DeletedOn))
	assert.Equal(t, 3, countRows(t, ds, "form_history", form.FormID))
}

func TestStore_HardDeleteCascadesHistory(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())
	require.NoError(t, ds.RecordHistory(context.Background(),
		model.NewHistory(form.FormID, model.RemarkFormUpdated, model.HistorySuccess, model.CategoryUpdated, "", time.Now())))

	require.NoError(t, ds.HardDeleteForm(context.Background(), form.FormID))

	_, err := ds.GetFormByID(context.Background(), form.FormID)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	history, err := ds.GetHistoryByFormID(context.Background(), form.FormID)
	require.NoError(t, err)
	assert.Empty(t, history)

	err = ds.HardDeleteForm(context.Background(), form.FormID)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestStore_MultiStatusSearchIsDedupedUnion(t *testing.T) {
	ds := newTestDatasource(t)
	base := time.Now().Add(-time.Hour)

	var expected []string
	statuses := []string{
		model.StatusPendingSync, model.StatusFailedSync, model.StatusIncomplete,
		model.StatusPendingSync, model.StatusFailedSync, model.StatusPendingSync,
	}
	for i, status := range statuses {
		form := seedForm(t, ds, status, base.Add(time.Duration(i)*time.Minute))
		if status != model.StatusIncomplete {
			expected = append([]string{form.FormID}, expected...)
		}
	}

	filter := model.FormFilter{Statuses: []string{model.StatusPendingSync, model.StatusFailedSync, model.StatusPendingSync}}
	forms, err := ds.SearchForms(context.Background(), filter, 0, 0)
	require.NoError(t, err)

	var got []string
	for _, f := range forms {
		got = append(got, f.FormID)
	}
	assert.Equal(t, expected, got)

	page, err := ds.SearchForms(context.Background(), filter, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, expected[1], page[0].FormID)
	assert.Equal(t, expected[2], page[1].FormID)

	count, err := ds.CountForms(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestStore_SearchFilters(t *testing.T) {
	ds := newTestDatasource(t)
	now := time.Now()

	old := seedForm(t, ds, model.StatusPendingSync, now.AddDate(0, 0, -10))
	synced := seedForm(t, ds, model.StatusSynchronizationComplete, now.Add(-time.Hour))

	form := model.Form{
		FormID: "frm_named", FormType: model.FormTypeUpdateContactDetail, Status: model.StatusIncomplete,
		CreatedBy: "teller01", CreatedOn: now, LastModifiedOn: now, CustomerName: "Tan Ah Kow Q7", CustomerID: "C000001",
	}
	_, err := ds.CreateForm(context.Background(), form,
		model.NewHistory(form.FormID, model.RemarkFormCreated, model.HistorySuccess, model.CategoryCreated, "", now))
	require.NoError(t, err)

	forms, err := ds.SearchForms(context.Background(), model.FormFilter{CustomerName: "ah kow q7"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, "frm_named", forms[0].FormID)

	flag := true
	forms, err = ds.SearchForms(context.Background(), model.FormFilter{SyncFlag: &flag}, 10, 0)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, synced.FormID, forms[0].FormID)

	start := now.AddDate(0, 0, -1)
	forms, err = ds.SearchForms(context.Background(), model.FormFilter{CreatedOnStart: &start}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, forms, 2)

	end := now.AddDate(0, 0, -5)
	forms, err = ds.SearchForms(context.Background(), model.FormFilter{CreatedOnEnd: &end}, 10, 0)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.Equal(t, old.FormID, forms[0].FormID)

	count, err := ds.CountForms(context.Background(), model.FormFilter{FormType: model.FormTypeUpdateContactDetail})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_ClaimFormForSync(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())

	claimed, err := ds.ClaimFormForSync(context.Background(), form.FormID, "teller01", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncInProgress, claimed.Status)
	assert.NotNil(t, claimed.SyncAttemptedOn)

	_, err = ds.ClaimFormForSync(context.Background(), form.FormID, "teller02", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, err = ds.ClaimFormForSync(context.Background(), "frm_missing", "teller02", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	expired := seedForm(t, ds, model.StatusExpired, time.Now())
	_, err = ds.ClaimFormForSync(context.Background(), expired.FormID, "teller02", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Contains(t, err.Error(), "can no longer be synced")
}

func TestStore_RecordSyncOutcome(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())
	_, err := ds.ClaimFormForSync(context.Background(), form.FormID, "teller01", time.Now())
	require.NoError(t, err)

	at := time.Now()
	synced, err := ds.RecordSyncOutcome(context.Background(), model.SyncOutcome{
		FormID: form.FormID, Status: model.StatusSynchronizationComplete, SyncFlag: true,
		SyncStatus: model.SyncStatusSuccess, RemoteID: "R1", ReferenceNumber: "REF1", Actor: "teller01", At: at,
		History: model.NewHistory(form.FormID, model.RemarkSyncSuccess, model.HistorySuccess, model.CategorySync, "", at),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSynchronizationComplete, synced.Status)
	assert.True(t, synced.SyncFlag)
	assert.Equal(t, "R1", synced.RemoteID)
	assert.Equal(t, "REF1", synced.ReferenceNumber)
	require.NotNil(t, synced.SyncedOn)

	// a later failure keeps the identifiers and sync date of the earlier success
	_, err = ds.Conn.Exec(`UPDATE forms SET status = $1 WHERE form_id = $2`, model.StatusSyncInProgress, form.FormID)
	require.NoError(t, err)
	failed, err := ds.RecordSyncOutcome(context.Background(), model.SyncOutcome{
		FormID: form.FormID, Status: model.StatusFailedSync, SyncFlag: false,
		SyncStatus: model.SyncStatusFailed, Actor: "teller01", At: at.Add(time.Minute),
		History: model.NewHistory(form.FormID, model.RemarkSyncFailed, model.HistoryFailed, model.CategorySync, model.NoResponseMessage, at),
	})
	require.NoError(t, err)
	assert.Equal(t, "R1", failed.RemoteID)
	assert.NotNil(t, failed.SyncedOn)
	assert.Equal(t, model.SyncStatusFailed, failed.SyncStatus)

	history, err := ds.GetHistoryByFormID(context.Background(), form.FormID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestStore_RecordSyncOutcome_KeepsCancelledStatus(t *testing.T) {
	ds := newTestDatasource(t)
	ctx := context.Background()
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())
	_, err := ds.ClaimFormForSync(ctx, form.FormID, "teller01", time.Now())
	require.NoError(t, err)

	at := time.Now()
	_, err = ds.SoftDeleteForm(ctx, form.FormID, "officer", at,
		model.NewHistory(form.FormID, model.RemarkFormDeleted, model.HistorySuccess, model.CategoryDeleted, "", at))
	require.NoError(t, err)

	got, err := ds.RecordSyncOutcome(ctx, model.SyncOutcome{
		FormID: form.FormID, Status: model.StatusSynchronizationComplete, SyncFlag: true,
		SyncStatus: model.SyncStatusSuccess, RemoteID: "R1", ReferenceNumber: "REF1", Actor: "teller01", At: at,
		History: model.NewHistory(form.FormID, model.RemarkSyncSuccess, model.HistorySuccess, model.CategorySync, "", at),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "officer", got.DeletedBy)
	assert.False(t, got.SyncFlag)
	assert.Nil(t, got.SyncedOn)
	assert.Equal(t, "R1", got.RemoteID)

	history, err := ds.GetHistoryByFormID(ctx, form.FormID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	_, err = ds.RecordSyncOutcome(ctx, model.SyncOutcome{FormID: "frm_missing", Status: model.StatusFailedSync, At: at})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestStore_ExpireSyncedBefore(t *testing.T) {
	ds := newTestDatasource(t)
	now := time.Now()

	expired := seedForm(t, ds, model.StatusSynchronizationComplete, now.AddDate(0, 0, -8))
	recent := seedForm(t, ds, model.StatusSynchronizationComplete, now.AddDate(0, 0, -3))
	legacy := seedForm(t, ds, model.StatusSynchronizationComplete, now.AddDate(0, 0, -9))
	_, err := ds.Conn.Exec(`UPDATE forms SET status = $1 WHERE form_id = $2`, model.LegacyStatusSynchronizationComplete, legacy.FormID)
	require.NoError(t, err)

	n, err := ds.ExpireSyncedBefore(context.Background(), now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[string]string{
		expired.FormID: model.StatusExpired,
		legacy.FormID:  model.StatusExpired,
		recent.FormID:  model.StatusSynchronizationComplete,
	} {
		form, err := ds.GetFormByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, form.Status, id)
	}
}

func TestStore_ExpireStaleBefore(t *testing.T) {
	ds := newTestDatasource(t)
	now := time.Now()

	stalePending := seedForm(t, ds, model.StatusPendingSync, now.AddDate(0, 0, -15))
	staleIncomplete := seedForm(t, ds, model.StatusIncomplete, now.AddDate(0, 0, -14))
	fresh := seedForm(t, ds, model.StatusPendingSync, now.AddDate(0, 0, -2))
	cancelled := seedForm(t, ds, model.StatusCancelled, now.AddDate(0, 0, -30))

	n, err := ds.ExpireStaleBefore(context.Background(), now.AddDate(0, 0, -14), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[string]string{
		stalePending.FormID:    model.StatusExpired,
		staleIncomplete.FormID: model.StatusExpired,
		fresh.FormID:           model.StatusPendingSync,
		cancelled.FormID:       model.StatusCancelled,
	} {
		form, err := ds.GetFormByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, form.Status, id)
	}

	history, err := ds.GetHistoryByFormID(context.Background(), stalePending.FormID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_ResetStuckSyncs(t *testing.T) {
	ds := newTestDatasource(t)
	now := time.Now()

	stuck := seedForm(t, ds, model.StatusPendingSync, now.Add(-time.Hour))
	_, err := ds.ClaimFormForSync(context.Background(), stuck.FormID, "teller01", now.Add(-30*time.Minute))
	require.NoError(t, err)
	active := seedForm(t, ds, model.StatusPendingSync, now)
	_, err = ds.ClaimFormForSync(context.Background(), active.FormID, "teller01", now)
	require.NoError(t, err)

	n, err := ds.ResetStuckSyncs(context.Background(), now.Add(-15*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	form, err := ds.GetFormByID(context.Background(), stuck.FormID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailedSync, form.Status)

	history, err := ds.GetHistoryByFormID(context.Background(), stuck.FormID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var interrupted *model.History
	for i := range history {
		if history[i].CategoryCode == model.CategorySync {
			interrupted = &history[i]
		}
	}
	require.NotNil(t, interrupted)
	assert.Equal(t, model.HistoryError, interrupted.Status)
	assert.Equal(t, model.SyncInterruptedMessage, interrupted.ErrorMessage)

	form, err = ds.GetFormByID(context.Background(), active.FormID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncInProgress, form.Status)

	history, err = ds.GetHistoryByFormID(context.Background(), active.FormID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_DeleteHistoryByFormID(t *testing.T) {
	ds := newTestDatasource(t)
	form := seedForm(t, ds, model.StatusPendingSync, time.Now())

	n, err := ds.DeleteHistoryByFormID(context.Background(), form.FormID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = ds.GetFormByID(context.Background(), form.FormID)
	assert.NoError(t, err)
}
