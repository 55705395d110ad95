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

import "time"

// Outcome tags stored in History.Status.
const (
	HistorySuccess = "SUCCESS"
	HistoryFailed  = "FAILED"
	HistoryError   = "ERROR"
)

// Category codes stored in History.CategoryCode.
const (
	CategoryCreated = "CREATED"
	CategoryUpdated = "UPDATED"
	CategoryDeleted = "DELETED"
	CategorySync    = "SYNC"
)

// History remarks.
const (
	RemarkFormCreated   = "Form Created"
	RemarkFormUpdated   = "Form Updated"
	RemarkFormDeleted   = "Form Deleted"
	RemarkSyncSuccess   = "Form Synchronized - Success"
	RemarkSyncFailed    = "Form Synchronized - Failed"
	RemarkSyncException = "Form Synchronized - Exception"
)

// NoResponseMessage is recorded when the remote system answers without usable data.
const NoResponseMessage = "No response received from server."

// SyncInterruptedMessage is recorded when a sync never reported its outcome.
const SyncInterruptedMessage = "Sync interrupted before the remote answer was recorded."

// History is an immutable audit entry describing one transition of a form.
type History struct {
	HistoryID    string    `json:"history_id"`
	FormID       string    `json:"form_id"`
	CreatedOn    time.Time `json:"created_on"`
	Remark       string    `json:"remark"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Status       string    `json:"status"`
	CategoryCode string    `json:"category_code"`
}

// NewHistory builds an entry for formID stamped at the given time.
func NewHistory(formID, remark, status, category, errorMessage string, at time.Time) History {
	return History{
		HistoryID:    GenerateUUIDWithSuffix("hst"),
		FormID:       formID,
		CreatedOn:    at,
		Remark:       remark,
		ErrorMessage: errorMessage,
		Status:       status,
		CategoryCode: category,
	}
}
