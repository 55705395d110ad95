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
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jerry-enebeli/formsync/model"
)

// CreateForm is the body of POST /api/forms.
type CreateForm struct {
	CreatedBy       string          `json:"created_by"`
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

// UpdateForm is the body of PUT /api/forms/:id. Empty fields keep their stored value.
type UpdateForm struct {
	LastModifiedBy  string          `json:"last_modified_by"`
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

// SyncForm carries the caller's credentials for the remote system.
type SyncForm struct {
	AuthorizationCode string          `json:"authorizationCode"`
	DbosHS            string          `json:"dbosHS"`
	Username          string          `json:"username"`
	ValueBody         json.RawMessage `json:"valueBody"`
}

type Purge struct {
	SyncDays  *int `json:"syncDays"`
	StaleDays *int `json:"staleDays"`
}

type Branches struct {
	AuthorizationCode string `json:"authorizationCode"`
}

// FormPage is a page of forms with the total number of matches.
type FormPage struct {
	Items      []model.Form `json:"items"`
	TotalCount int64        `json:"totalCount"`
}

// FormDetail is a form with its history, newest first.
type FormDetail struct {
	Form    *model.Form     `json:"form"`
	History []model.History `json:"history"`
}

func dataObjectRule(value interface{}) error {
	raw, _ := value.(json.RawMessage)
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.New("must be a JSON object")
	}
	return nil
}

func (f *CreateForm) ValidateCreateForm() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.CreatedBy, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.FormType, validation.Required, validation.Length(1, 100)),
		validation.Field(&f.FormCategory, validation.Length(0, 100)),
		validation.Field(&f.CustomerID, validation.Length(0, 100)),
		validation.Field(&f.CustomerName, validation.Length(0, 255)),
		validation.Field(&f.Data, validation.By(dataObjectRule)),
	)
}

func (f *UpdateForm) ValidateUpdateForm() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.FormType, validation.Length(0, 100)),
		validation.Field(&f.FormCategory, validation.Length(0, 100)),
		validation.Field(&f.CustomerID, validation.Length(0, 100)),
		validation.Field(&f.CustomerName, validation.Length(0, 255)),
		validation.Field(&f.Data, validation.By(dataObjectRule)),
	)
}

func (p *Purge) ValidatePurge() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.SyncDays, validation.Min(0)),
		validation.Field(&p.StaleDays, validation.Min(0)),
	)
}

func (b *Branches) ValidateBranches() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.AuthorizationCode, validation.Required),
	)
}

func (f *CreateForm) ToFormRequest() model.FormRequest {
	return model.FormRequest{
		Actor:           f.CreatedBy,
		FormType:        f.FormType,
		FormCategory:    f.FormCategory,
		CustomerID:      f.CustomerID,
		CustomerName:    f.CustomerName,
		Branch:          f.Branch,
		DateOfBirth:     f.DateOfBirth,
		CountryOfOrigin: f.CountryOfOrigin,
		IDType:          f.IDType,
		Data:            f.Data,
	}
}

func (f *UpdateForm) ToFormRequest() model.FormRequest {
	return model.FormRequest{
		Actor:           f.LastModifiedBy,
		FormType:        f.FormType,
		FormCategory:    f.FormCategory,
		CustomerID:      f.CustomerID,
		CustomerName:    f.CustomerName,
		Branch:          f.Branch,
		DateOfBirth:     f.DateOfBirth,
		CountryOfOrigin: f.CountryOfOrigin,
		IDType:          f.IDType,
		Data:            f.Data,
	}
}

func (s *SyncForm) ToCredentials() model.SyncCredentials {
	return model.SyncCredentials{
		AuthorizationCode: s.AuthorizationCode,
		DbosHS:            s.DbosHS,
		Username:          s.Username,
		ValueBody:         s.ValueBody,
	}
}
