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

	"github.com/jerry-enebeli/formsync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	form    // Interface for form lifecycle operations
	history // Interface for form history operations
	purge   // Interface for bulk maintenance sweeps
	Ping(ctx context.Context) error
	Close() error
}

// form defines methods for handling form records.
type form interface {
	CreateForm(ctx context.Context, form model.Form, entry model.History) (model.Form, error)                     // Inserts a new form and its creation history
	GetFormByID(ctx context.Context, id string) (*model.Form, error)                                              // Retrieves a form by ID
	SearchForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, error)            // Retrieves forms matching a filter, newest first
	CountForms(ctx context.Context, filter model.FormFilter) (int64, error)                                       // Counts forms matching a filter
	UpdateForm(ctx context.Context, form model.Form, entry model.History) (*model.Form, error)                    // Rewrites a form and records its update history
	SoftDeleteForm(ctx context.Context, id, actor string, at time.Time, entry model.History) (*model.Form, error) // Marks a form cancelled
	HardDeleteForm(ctx context.Context, id string) error                                                          // Removes a form and its history
	ClaimFormForSync(ctx context.Context, id, actor string, at time.Time) (*model.Form, error)                    // Moves a syncable form to SYNC_IN_PROGRESS
	RecordSyncOutcome(ctx context.Context, outcome model.SyncOutcome) (*model.Form, error)                        // Writes the result of a sync attempt and its history
}

// history defines methods for handling the form audit trail.
type history interface {
	RecordHistory(ctx context.Context, entry model.History) error                   // Appends a history entry
	GetHistoryByFormID(ctx context.Context, formID string) ([]model.History, error) // Retrieves history for a form, newest first
	DeleteHistoryByFormID(ctx context.Context, formID string) (int64, error)        // Removes history for a form
}

// purge defines the bulk sweeps run by the scheduler.
type purge interface {
	ExpireSyncedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)       // Expires synced forms whose sync date is on or before cutoff
	ExpireStaleBefore(ctx context.Context, cutoff, at time.Time) (int64, error)        // Expires unsynced forms created on or before cutoff
	ResetStuckSyncs(ctx context.Context, attemptedBefore, at time.Time) (int64, error) // Fails syncs left in progress since before attemptedBefore
}

func (d Datasource) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d Datasource) Close() error {
	return d.Conn.Close()
}
