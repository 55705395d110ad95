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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	redlock "github.com/jerry-enebeli/formsync/internal/lock"
	"github.com/jerry-enebeli/formsync/internal/remote"
	"github.com/jerry-enebeli/formsync/model"
)

// syncLockTTL outlives the remote timeout so a slow submit cannot lose its lock.
const syncLockTTL = 60 * time.Second

const syncSuccessMessage = "Form synchronized successfully"

func syncLockKey(formID string) string {
	return "form-sync:" + formID
}

// SyncForm submits a PENDING_SYNC or FAILED_SYNC form to the remote system once.
// The returned result is always populated once the form has been claimed. A
// transport failure or non-2xx answer also returns an ErrRemoteSync error.
func (f *Formsync) SyncForm(ctx context.Context, formID string, creds model.SyncCredentials) (*model.SyncResult, error) {
	ctx, span := tracer.Start(ctx, "SyncForm")
	defer span.End()

	mutex := f.locks.NewMutex(syncLockKey(formID))
	if err := mutex.Lock(ctx, syncLockTTL); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			logrus.WithField("form_id", formID).Warn("sync already in progress")
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("form %s is already being synchronized", formID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to acquire sync lock", err)
	}
	defer func() {
		if err := mutex.Unlock(context.WithoutCancel(ctx)); err != nil {
			logrus.WithField("form_id", formID).Errorf("failed to release sync lock: %v", err)
		}
	}()

	actor := creds.Actor()
	claimed, err := f.datasource.ClaimFormForSync(ctx, formID, actor, f.clock.Now())
	if err != nil {
		return nil, err
	}

	body := []byte(claimed.Payload)
	if override := bytes.TrimSpace(creds.ValueBody); len(override) > 0 && !bytes.Equal(override, []byte("null")) {
		body = override
	}

	submission, submitErr := f.remote.Submit(ctx, body, remote.Credentials{
		AuthorizationCode: creds.AuthorizationCode,
		DbosHS:            creds.DbosHS,
	})

	outcome, result, syncErr := reconcileSync(formID, actor, f.clock.Now(), submission, submitErr)

	// the claim must not stay in progress because the caller went away
	synced, err := f.datasource.RecordSyncOutcome(context.WithoutCancel(ctx), outcome)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Status = synced.Status

	logrus.WithFields(logrus.Fields{
		"form_id": formID,
		"status":  synced.Status,
		"error":   result.Error,
	}).Info("form sync finished")
	f.publish(ctx, getSyncEvent(synced.Status), synced)

	if syncErr != nil {
		span.RecordError(syncErr)
	}
	return result, syncErr
}

// reconcileSync turns the remote answer into the record update, its history and the caller's result.
func reconcileSync(formID, actor string, at time.Time, submission *model.RemoteSubmission, submitErr error) (model.SyncOutcome, *model.SyncResult, error) {
	outcome := model.SyncOutcome{
		FormID:     formID,
		Status:     model.StatusFailedSync,
		SyncFlag:   false,
		SyncStatus: model.SyncStatusFailed,
		Actor:      actor,
		At:         at,
	}

	switch {
	case submitErr == nil && submission != nil:
		outcome.Status = model.StatusSynchronizationComplete
		outcome.SyncFlag = true
		outcome.SyncStatus = model.SyncStatusSuccess
		outcome.RemoteID = submission.UUID
		outcome.ReferenceNumber = submission.RefNo
		outcome.History = model.NewHistory(formID, model.RemarkSyncSuccess, model.HistorySuccess, model.CategorySync, "", at)
		return outcome, &model.SyncResult{
			RemoteID:        submission.UUID,
			ReferenceNumber: submission.RefNo,
			Message:         syncSuccessMessage,
		}, nil

	case submitErr == nil, errors.Is(submitErr, remote.ErrNoResponseData):
		outcome.History = model.NewHistory(formID, model.RemarkSyncFailed, model.HistoryFailed, model.CategorySync, model.NoResponseMessage, at)
		return outcome, &model.SyncResult{Error: true, Message: model.NoResponseMessage}, nil

	default:
		logrus.WithFields(logrus.Fields{
			"form_id": formID,
			"cause":   pkgerrors.Cause(submitErr),
		}).Error("remote sync failed")
		outcome.History = model.NewHistory(formID, model.RemarkSyncException, model.HistoryError, model.CategorySync, submitErr.Error(), at)
		return outcome, &model.SyncResult{Error: true, Message: submitErr.Error()},
			apierror.NewAPIError(apierror.ErrRemoteSync, "Failed to synchronize form with remote system", submitErr.Error())
	}
}
