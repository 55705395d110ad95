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

package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Lifecycle states of a form record.
const (
	StatusIncomplete              = "INCOMPLETE"
	StatusPendingSync             = "PENDING_SYNC"
	StatusSyncInProgress          = "SYNC_IN_PROGRESS"
	StatusSynchronizationComplete = "SYNCHRONIZATION_COMPLETE"
	StatusFailedSync              = "FAILED_SYNC"
	StatusCancelled               = "CANCELLED"
	StatusExpired                 = "EXPIRED"
)

// Values of Form.SyncStatus.
const (
	SyncStatusNone    = "NONE"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// Spellings written by older clients that the sweeps still honour.
const (
	LegacyStatusSynchronizationComplete = "Synchronization Complete"
	LegacyStatusPendingSync             = "Pending Sync"
	LegacyStatusIncomplete              = "Incomplete"
)

// FormTypeUpdateContactDetail is the contact detail update form.
const FormTypeUpdateContactDetail = "UPDATE_CONTACT_DETAIL"

// Form is a persisted offline form submission and its lifecycle state.
type Form struct {
	FormID          string     `json:"form_id"`
	RemoteID        string     `json:"remote_id"`
	ReferenceNumber string     `json:"reference_number"`
	Payload         string     `json:"payload"`
	FormType        string     `json:"form_type"`
	FormCategory    string     `json:"form_category"`
	SyncFlag        bool       `json:"sync_flag"`
	SyncStatus      string     `json:"sync_status"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	CreatedOn       time.Time  `json:"created_on"`
	LastModifiedBy  string     `json:"last_modified_by"`
	LastModifiedOn  time.Time  `json:"last_modified_on"`
	SyncedOn        *time.Time `json:"synced_on,omitempty"`
	SyncAttemptedOn *time.Time `json:"sync_attempted_on,omitempty"`
	DeletedBy       string     `json:"deleted_by,omitempty"`
	DeletedOn       *time.Time `json:"deleted_on,omitempty"`
	CustomerName    string     `json:"customer_name"`
	CustomerID      string     `json:"customer_id"`
	Branch          string     `json:"branch"`
	DateOfBirth     string     `json:"date_of_birth"`
	CountryOfOrigin string     `json:"country_of_origin"`
	IDType          string     `json:"id_type"`
}

// FormRequest is the input of a create or update.
// Data is the form-type specific payload; a nil Data on update keeps the stored payload.
type FormRequest struct {
	Actor           string          `json:"actor"`
	FormType        string          `json:"form_type"`
	FormCategory    string          `json:"form_category"`
	CustomerID      string          `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	Branch          string          `json:"branch"`
	DateOfBirth     string          `json:"date_of_birth"`
	CountryOfOrigin string          `json:"country_of_origin"`
	IDType          string          `json:"id_type"`
	Data            json.RawMessage `json:"data"`
}

// HasData reports whether the request carries a payload at all.
func (r FormRequest) HasData() bool {
	trimmed := strings.TrimSpace(string(r.Data))
	return trimmed != "" && trimmed != "null"
}

// IsTerminal reports whether the status can no longer move under normal flows.
func IsTerminal(status string) bool {
	return status == StatusCancelled || status == StatusExpired
}
