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
package mocks

import (
	"context"
	"time"

	"github.com/jerry-enebeli/formsync/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Form methods

func (m *MockDataSource) CreateForm(ctx context.Context, form model.Form, entry model.History) (model.Form, error) {
	args := m.Called(ctx, form, entry)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *MockDataSource) GetFormByID(ctx context.Context, id string) (*model.Form, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Form), args.Error(1)
}

func (m *MockDataSource) SearchForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, error) {
	args := m.Called(ctx, filter, limit, offset)
	return args.Get(0).([]model.Form), args.Error(1)
}

func (m *MockDataSource) CountForms(ctx context.Context, filter model.FormFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) UpdateForm(ctx context.Context, form model.Form, entry model.History) (*model.Form, error) {
	args := m.Called(ctx, form, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Form), args.Error(1)
}

func (m *MockDataSource) SoftDeleteForm(ctx context.Context, id, actor string, at time.Time, entry model.History) (*model.Form, error) {
	args := m.Called(ctx, id, actor, at, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Form), args.Error(1)
}

func (m *MockDataSource) HardDeleteForm(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ClaimFormForSync(ctx context.Context, id, actor string, at time.Time) (*model.Form, error) {
	args := m.Called(ctx, id, actor, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Form), args.Error(1)
}

func (m *MockDataSource) RecordSyncOutcome(ctx context.Context, outcome model.SyncOutcome) (*model.Form, error) {
	args := m.Called(ctx, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Form), args.Error(1)
}

// History methods

func (m *MockDataSource) RecordHistory(ctx context.Context, entry model.History) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) GetHistoryByFormID(ctx context.Context, formID string) ([]model.History, error) {
	args := m.Called(ctx, formID)
	return args.Get(0).([]model.History), args.Error(1)
}

func (m *MockDataSource) DeleteHistoryByFormID(ctx context.Context, formID string) (int64, error) {
	args := m.Called(ctx, formID)
	return args.Get(0).(int64), args.Error(1)
}

// Purge methods

func (m *MockDataSource) ExpireSyncedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ExpireStaleBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	args := m.Called(ctx, cutoff, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) ResetStuckSyncs(ctx context.Context, attemptedBefore, at time.Time) (int64, error) {
	args := m.Called(ctx, attemptedBefore, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
