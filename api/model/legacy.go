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

	"github.com/jerry-enebeli/formsync/model"
)

// JavaDateTime renders a timestamp the way Jackson serialises a LocalDateTime:
// [year, month, day, hour, minute, second, nanos] in server local time.
type JavaDateTime [7]int

func NewJavaDateTime(t time.Time) JavaDateTime {
	t = t.Local()
	return JavaDateTime{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()}
}

func javaDateTimePtr(t *time.Time) *JavaDateTime {
	if t == nil {
		return nil
	}
	d := NewJavaDateTime(*t)
	return &d
}

// LegacyFormRequest is the body of /form/requestForm and /form/update.
type LegacyFormRequest struct {
	CreatedBy         string          `json:"createdBy"`
	LastModifiedBy    string          `json:"lastModifiedBy"`
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	FormType          string          `json:"formType"`
	FormCategory      string          `json:"formCategory"`
	TransactionBranch string          `json:"transactionBranch"`
	DateOfBirth       string          `json:"dateOfBirth"`
	CountryOfOrigin   string          `json:"countryOfOrigin"`
	IDType            string          `json:"idType"`
	Data              json.RawMessage `json:"data"`
}

// LegacyDefaultActor stands in for the actor older clients leave out.
const LegacyDefaultActor = "system"

// LegacyActor returns actor, or LegacyDefaultActor when it is blank.
func LegacyActor(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return LegacyDefaultActor
	}
	return actor
}

func (r *LegacyFormRequest) ToFormRequest(update bool) model.FormRequest {
	actor := LegacyActor(r.CreatedBy)
	if update {
		actor = r.LastModifiedBy
	}
	return model.FormRequest{
		Actor:           actor,
		FormType:        r.FormType,
		FormCategory:    r.FormCategory,
		CustomerID:      r.ID,
		CustomerName:    r.Name,
		Branch:          r.TransactionBranch,
		DateOfBirth:     r.DateOfBirth,
		CountryOfOrigin: r.CountryOfOrigin,
		IDType:          r.IDType,
		Data:            r.Data,
	}
}

// LegacyForm is a form in the shape older clients expect.
type LegacyForm struct {
	UUID              string        `json:"uuid"`
	UUIDOnline        string        `json:"uuidOnline"`
	RefNo             string        `json:"refNo"`
	PayloadJSON       string        `json:"payloadJson"`
	FormType          string        `json:"formType"`
	IsFormSync        bool          `json:"isFormSync"`
	FormSync          bool          `json:"formSync"`
	FormSyncStatus    string        `json:"formSyncStatus"`
	CreatedBy         string        `json:"createdBy"`
	CreatedOn         JavaDateTime  `json:"createdOn"`
	LastModifiedBy    string        `json:"lastModifiedBy"`
	LastModifiedOn    JavaDateTime  `json:"lastModifiedOn"`
	FormSyncDate      *JavaDateTime `json:"formSyncDate"`
	FormSyncOn        *JavaDateTime `json:"formSyncOn"`
	CustomerName      string        `json:"customerName"`
	CustomerID        string        `json:"customerId"`
	TransactionBranch string        `json:"transactionBranch"`
	DateOfBirth       string        `json:"dateOfBirth"`
	CountryOfOrigin   string        `json:"countryOfOrigin"`
	IDType            string        `json:"idType"`
	Status            string        `json:"status"`
	DeletedBy         string        `json:"deletedBy"`
	DeletedOn         *JavaDateTime `json:"deletedOn"`
	FormCategory      string        `json:"formCategory"`
}

func NewLegacyForm(f model.Form) LegacyForm {
	return LegacyForm{
		UUID:              f.FormID,
		UUIDOnline:        f.RemoteID,
		RefNo:             f.ReferenceNumber,
		PayloadJSON:       f.Payload,
		FormType:          f.FormType,
		IsFormSync:        f.SyncFlag,
		FormSync:          f.SyncFlag,
		FormSyncStatus:    f.SyncStatus,
		CreatedBy:         f.CreatedBy,
		CreatedOn:         NewJavaDateTime(f.CreatedOn),
		LastModifiedBy:    f.LastModifiedBy,
		LastModifiedOn:    NewJavaDateTime(f.LastModifiedOn),
		FormSyncDate:      javaDateTimePtr(f.SyncAttemptedOn),
		FormSyncOn:        javaDateTimePtr(f.SyncedOn),
		CustomerName:      f.CustomerName,
		CustomerID:        f.CustomerID,
		TransactionBranch: f.Branch,
		DateOfBirth:       f.DateOfBirth,
		CountryOfOrigin:   f.CountryOfOrigin,
		IDType:            f.IDType,
		Status:            f.Status,
		DeletedBy:         f.DeletedBy,
		DeletedOn:         javaDateTimePtr(f.DeletedOn),
		FormCategory:      f.FormCategory,
	}
}

func NewLegacyForms(forms []model.Form) []LegacyForm {
	out := make([]LegacyForm, 0, len(forms))
	for _, f := range forms {
		out = append(out, NewLegacyForm(f))
	}
	return out
}

type LegacyHistory struct {
	UUID         string       `json:"uuid"`
	CreatedOn    JavaDateTime `json:"createdOn"`
	Remark       string       `json:"remark"`
	ErrorMessage string       `json:"errorMessage"`
	Status       string       `json:"status"`
	UUIDOffline  string       `json:"uuidOffline"`
	CategoryCode string       `json:"categoryCode"`
}

func NewLegacyHistory(entries []model.History) []LegacyHistory {
	out := make([]LegacyHistory, 0, len(entries))
	for _, h := range entries {
		out = append(out, LegacyHistory{
			UUID:         h.HistoryID,
			CreatedOn:    NewJavaDateTime(h.CreatedOn),
			Remark:       h.Remark,
			ErrorMessage: h.ErrorMessage,
			Status:       h.Status,
			UUIDOffline:  h.FormID,
			CategoryCode: h.CategoryCode,
		})
	}
	return out
}

// LegacySyncResult is the answer of /form/sync.
type LegacySyncResult struct {
	UUID    string `json:"uuid"`
	RefNo   string `json:"refNo"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func NewLegacySyncResult(r model.SyncResult) LegacySyncResult {
	status := "success"
	if r.Error {
		status = "failed"
	}
	return LegacySyncResult{
		UUID:    r.RemoteID,
		RefNo:   r.ReferenceNumber,
		Error:   r.Error,
		Message: r.Message,
		Status:  status,
	}
}
