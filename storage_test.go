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
package formsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/formsync/database/mocks"
	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/internal/cache"
	redlock "github.com/jerry-enebeli/formsync/internal/lock"
	"github.com/jerry-enebeli/formsync/model"
)

func newMockedFormsync(t *testing.T) (*Formsync, *mocks.MockDataSource, *stubRemote) {
	t.Helper()

	ds := &mocks.MockDataSource{}
	rem := &stubRemote{}
	f, err := NewFormsync(ds,
		WithConfig(testConfig()),
		WithRemoteClient(rem),
		WithLockProvider(redlock.NewKeyedMutex()),
		WithCache(cache.NewMemoryCache(time.Minute)),
		WithClock(NewStubClock(testNow)),
	)
	require.NoError(t, err)
	return f, ds, rem
}

func TestCreateForm_StorageErrorPropagates(t *testing.T) {
	f, ds, _ := newMockedFormsync(t)
	storageErr := apierror.NewAPIError(apierror.ErrStorage, "Failed to create form", nil)
	ds.On("CreateForm", mock.Anything, mock.AnythingOfType("model.Form"), mock.AnythingOfType("model.History")).
		Return(model.Form{}, storageErr)

	form, err := f.CreateForm(context.Background(), completeContactRequest(t))
	assert.Nil(t, form)
	assert.True(t, apierror.Is(err, apierror.ErrStorage))
	ds.AssertExpectations(t)
}

func TestCreateForm_PassesCreationHistory(t *testing.T) {
	f, ds, _ := newMockedFormsync(t)
	ds.On("CreateForm", mock.Anything,
		mock.MatchedBy(func(form model.Form) bool {
			return form.Status == model.StatusPendingSync && form.CreatedOn.Equal(testNow) && !form.SyncFlag
		}),
		mock.MatchedBy(func(entry model.History) bool {
			return entry.CategoryCode == model.CategoryCreated && entry.Status == model.HistorySuccess
		}),
	).Return(model.Form{FormID: "F-1", Status: model.StatusPendingSync}, nil)

	form, err := f.CreateForm(context.Background(), completeContactRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "F-1", form.FormID)
	ds.AssertExpectations(t)
}

func TestSyncForm_OutcomeWriteFailure(t *testing.T) {
	f, ds, rem := newMockedFormsync(t)
	rem.submission = &model.RemoteSubmission{UUID: "R-1", RefNo: "REF-1"}

	ds.On("ClaimFormForSync", mock.Anything, "F-1", mock.Anything, testNow).
		Return(&model.Form{FormID: "F-1", Payload: `{"email":"a@b.my"}`, Status: model.StatusSyncInProgress}, nil)
	ds.On("RecordSyncOutcome", mock.Anything, mock.MatchedBy(func(o model.SyncOutcome) bool {
		return o.FormID == "F-1" && o.Status == model.StatusSynchronizationComplete && o.RemoteID == "R-1"
	})).Return(nil, errors.New("disk I/O error"))

	result, err := f.SyncForm(context.Background(), "F-1", model.SyncCredentials{AuthorizationCode: "auth"})
	assert.Nil(t, result)
	assert.EqualError(t, err, "disk I/O error")
	assert.Equal(t, 1, rem.submitCount())
	ds.AssertExpectations(t)
}

func TestSyncForm_ClaimRejectedSkipsRemote(t *testing.T) {
	f, ds, rem := newMockedFormsync(t)
	ds.On("ClaimFormForSync", mock.Anything, "F-2", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrConflict, "form F-2 is not in a syncable state", nil))

	_, err := f.SyncForm(context.Background(), "F-2", model.SyncCredentials{})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.Equal(t, 0, rem.submitCount())
	ds.AssertNotCalled(t, "RecordSyncOutcome", mock.Anything, mock.Anything)
}

func TestRunManual_StopsOnSyncedSweepError(t *testing.T) {
	f, ds, _ := newMockedFormsync(t)
	ds.On("ExpireSyncedBefore", mock.Anything, testNow.AddDate(0, 0, -7), testNow).
		Return(int64(0), apierror.NewAPIError(apierror.ErrStorage, "Failed to expire synced forms", nil))

	_, err := NewPurgeScheduler(f).RunScheduled(context.Background())
	assert.True(t, apierror.Is(err, apierror.ErrStorage))
	ds.AssertNotCalled(t, "ExpireStaleBefore", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunScheduled_UsesConfiguredWindows(t *testing.T) {
	f, ds, _ := newMockedFormsync(t)
	ds.On("ExpireSyncedBefore", mock.Anything, testNow.AddDate(0, 0, -7), testNow).Return(int64(2), nil)
	ds.On("ExpireStaleBefore", mock.Anything, testNow.AddDate(0, 0, -14), testNow).Return(int64(5), nil)

	result, err := NewPurgeScheduler(f).RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.PurgeResult{ExpiredSyncedCount: 2, ExpiredStaleCount: 5}, result)
	ds.AssertExpectations(t)
}

func TestRecoverStuckSyncs_Threshold(t *testing.T) {
	f, ds, _ := newMockedFormsync(t)
	ds.On("ResetStuckSyncs", mock.Anything, testNow.Add(-900*time.Second), testNow).Return(int64(1), nil)

	count, err := NewPurgeScheduler(f).RecoverStuckSyncs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	ds.AssertExpectations(t)
}
