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
	"time"
)

// SyncCredentials are supplied by the caller and forwarded to the remote system untouched.
type SyncCredentials struct {
	AuthorizationCode string          `json:"authorizationCode"`
	DbosHS            string          `json:"dbosHS"`
	Username          string          `json:"username"`
	ValueBody         json.RawMessage `json:"valueBody,omitempty"`
}

// Actor returns the user recorded as the modifier of a sync.
func (c SyncCredentials) Actor() string {
	if c.Username == "" {
		return "system"
	}
	return c.Username
}

// SyncResult is returned for every sync attempt. Error=false does not imply a populated RemoteID.
type SyncResult struct {
	RemoteID        string `json:"remoteId"`
	ReferenceNumber string `json:"referenceNumber"`
	Error           bool   `json:"error"`
	Message         string `json:"message"`
	Status          string `json:"status"`
}

// SyncOutcome is the reconciled state written back after the remote call.
type SyncOutcome struct {
	FormID          string
	Status          string
	SyncFlag        bool
	SyncStatus      string
	RemoteID        string
	ReferenceNumber string
	Actor           string
	At              time.Time
	History         History
}

// RemoteSubmission is the success body of the remote submit endpoint.
type RemoteSubmission struct {
	UUID  string `json:"uuid"`
	RefNo string `json:"refNo"`
}

// Branch is an entry of the remote branch directory.
type Branch struct {
	BranchName    string `json:"branchName"`
	UUID          string `json:"uuid"`
	ConvBranch    string `json:"convBranch"`
	IslamicBranch string `json:"islamicBranch"`
}

// PurgeResult reports the rows moved to EXPIRED by one manual or scheduled run.
type PurgeResult struct {
	ExpiredSyncedCount int64 `json:"expiredSyncedCount"`
	ExpiredStaleCount  int64 `json:"expiredStaleCount"`
}
