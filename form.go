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
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

var tracer = otel.Tracer("formsync.service")

func validateFormRequest(req model.FormRequest) error {
	if strings.TrimSpace(req.FormType) == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "form type is required", nil)
	}
	return validateActor(req.Actor)
}

func validateActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "actor is required", nil)
	}
	return nil
}

// CreateForm stores a new form. It starts as PENDING_SYNC when the completeness
// rule for its type accepts the data and INCOMPLETE otherwise.
func (f *Formsync) CreateForm(ctx context.Context, req model.FormRequest) (*model.Form, error) {
	ctx, span := tracer.Start(ctx, "CreateForm")
	defer span.End()

	if err := validateFormRequest(req); err != nil {
		return nil, err
	}

	now := f.clock.Now()
	built := f.buildPayload(req)
	form := model.Form{
		Payload:         built.Payload,
		FormType:        strings.TrimSpace(req.FormType),
		FormCategory:    req.FormCategory,
		SyncFlag:        false,
		SyncStatus:      model.SyncStatusNone,
		Status:          statusFor(built.Complete),
		CreatedBy:       req.Actor,
		CreatedOn:       now,
		LastModifiedBy:  req.Actor,
		LastModifiedOn:  now,
		CustomerName:    req.CustomerName,
		CustomerID:      req.CustomerID,
		Branch:          req.Branch,
		DateOfBirth:     req.DateOfBirth,
		CountryOfOrigin: req.CountryOfOrigin,
		IDType:          req.IDType,
	}

	entry := model.NewHistory("", model.RemarkFormCreated, model.HistorySuccess, model.CategoryCreated, "", now)
	created, err := f.datasource.CreateForm(ctx, form, entry)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"form_id": created.FormID, "status": created.Status}).Info("form created")
	f.publish(ctx, EventFormCreated, &created)
	return &created, nil
}

// UpdateForm rewrites the descriptive fields that the request carries. New data
// re-evaluates completeness; forms past PENDING_SYNC keep their status and sync state.
func (f *Formsync) UpdateForm(ctx context.Context, id string, req model.FormRequest) (*model.Form, error) {
	ctx, span := tracer.Start(ctx, "UpdateForm")
	defer span.End()

	existing, err := f.datasource.GetFormByID(ctx, id)
	if err != nil {
		return nil, err
	}

	form := *existing
	form.FormType = firstNonEmpty(strings.TrimSpace(req.FormType), existing.FormType)
	form.FormCategory = firstNonEmpty(req.FormCategory, existing.FormCategory)
	form.CustomerName = firstNonEmpty(req.CustomerName, existing.CustomerName)
	form.CustomerID = firstNonEmpty(req.CustomerID, existing.CustomerID)
	form.Branch = firstNonEmpty(req.Branch, existing.Branch)
	form.DateOfBirth = firstNonEmpty(req.DateOfBirth, existing.DateOfBirth)
	form.CountryOfOrigin = firstNonEmpty(req.CountryOfOrigin, existing.CountryOfOrigin)
	form.IDType = firstNonEmpty(req.IDType, existing.IDType)
	form.LastModifiedBy = firstNonEmpty(req.Actor, existing.LastModifiedBy)

	if req.HasData() {
		merged := req
		merged.FormType = form.FormType
		merged.CustomerID = form.CustomerID
		merged.CustomerName = form.CustomerName
		built := f.buildPayload(merged)
		form.Payload = built.Payload
		form.Status = statusFor(built.Complete)
	}

	now := f.clock.Now()
	form.LastModifiedOn = now

	entry := model.NewHistory(id, model.RemarkFormUpdated, model.HistorySuccess, model.CategoryUpdated, "", now)
	updated, err := f.datasource.UpdateForm(ctx, form, entry)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"form_id": id, "status": updated.Status}).Info("form updated")
	f.publish(ctx, EventFormUpdated, updated)
	return updated, nil
}

// CancelForm soft deletes a form on behalf of actor. Cancelling an already
// cancelled form succeeds and re-stamps it.
func (f *Formsync) CancelForm(ctx context.Context, id, actor string) (*model.Form, error) {
	ctx, span := tracer.Start(ctx, "CancelForm")
	defer span.End()

	if err := validateActor(actor); err != nil {
		return nil, err
	}

	now := f.clock.Now()
	entry := model.NewHistory(id, model.RemarkFormDeleted, model.HistorySuccess, model.CategoryDeleted, "", now)
	cancelled, err := f.datasource.SoftDeleteForm(ctx, id, actor, now, entry)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"form_id": id, "actor": actor}).Info("form cancelled")
	f.publish(ctx, EventFormCancelled, cancelled)
	return cancelled, nil
}

// DeleteForm removes a form and its history permanently.
func (f *Formsync) DeleteForm(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "DeleteForm")
	defer span.End()

	existing, err := f.datasource.GetFormByID(ctx, id)
	if err != nil {
		return err
	}
	if err := f.datasource.HardDeleteForm(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}

	logrus.WithField("form_id", id).Warn("form permanently deleted")
	f.publish(ctx, EventFormDeleted, existing)
	return nil
}

func (f *Formsync) GetForm(ctx context.Context, id string) (*model.Form, error) {
	return f.datasource.GetFormByID(ctx, id)
}

// GetFormWithHistory returns the form together with its history, newest first.
func (f *Formsync) GetFormWithHistory(ctx context.Context, id string) (*model.Form, []model.History, error) {
	form, err := f.datasource.GetFormByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	history, err := f.datasource.GetHistoryByFormID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return form, history, nil
}

func (f *Formsync) GetHistory(ctx context.Context, formID string) ([]model.History, error) {
	return f.datasource.GetHistoryByFormID(ctx, formID)
}

// SearchForms returns one page of matching forms and the total match count.
// A limit of zero returns every match.
func (f *Formsync) SearchForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, int64, error) {
	ctx, span := tracer.Start(ctx, "SearchForms")
	defer span.End()

	filter = filter.Normalize()
	forms, err := f.datasource.SearchForms(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := f.datasource.CountForms(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return forms, total, nil
}

func (f *Formsync) CountForms(ctx context.Context, filter model.FormFilter) (int64, error) {
	return f.datasource.CountForms(ctx, filter.Normalize())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
