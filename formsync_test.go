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
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/database"
	"github.com/jerry-enebeli/formsync/internal/cache"
	redlock "github.com/jerry-enebeli/formsync/internal/lock"
	"github.com/jerry-enebeli/formsync/internal/remote"
	"github.com/jerry-enebeli/formsync/model"
)

var testNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

// stubRemote records submissions and answers with the configured result.
type stubRemote struct {
	mu          sync.Mutex
	submission  *model.RemoteSubmission
	err         error
	branches    []model.Branch
	branchesErr error
	bodies      [][]byte
	creds       []remote.Credentials
	branchCalls int
	onSubmit    func()
}

func (s *stubRemote) Submit(_ context.Context, body []byte, creds remote.Credentials) (*model.RemoteSubmission, error) {
	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	s.creds = append(s.creds, creds)
	hook := s.onSubmit
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.submission, s.err
}

func (s *stubRemote) Branches(_ context.Context, _ string) ([]model.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branchCalls++
	return s.branches, s.branchesErr
}

func (s *stubRemote) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

type testEnv struct {
	formsync *Formsync
	ds       *database.Datasource
	remote   *stubRemote
	clock    *StubClock
	locks    *redlock.KeyedMutex
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		ProjectName:       "formsync-test",
		BranchCacheTTLSec: 600,
		DataSource:        config.DataSourceConfig{Driver: database.DriverSQLite, Dns: ":memory:"},
		Purge: config.PurgeConfig{
			SyncedDays:          7,
			StaleDays:           14,
			RecoveryIntervalSec: 300,
			StuckThresholdSec:   900,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ds, err := database.NewSQLiteDataSource(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Conn.Close() })

	env := &testEnv{
		ds:     ds,
		remote: &stubRemote{},
		clock:  NewStubClock(testNow),
		locks:  redlock.NewKeyedMutex(),
	}
	env.formsync, err = NewFormsync(ds,
		WithConfig(testConfig()),
		WithRemoteClient(env.remote),
		WithLockProvider(env.locks),
		WithCache(cache.NewMemoryCache(time.Minute)),
		WithClock(env.clock),
	)
	require.NoError(t, err)
	return env
}

// contactDetails is the payload shape of an UPDATE_CONTACT_DETAIL form.
type contactDetails struct {
	Email             string `json:"email,omitempty"`
	CountryCodeMobile string `json:"countryCodeMobile,omitempty"`
	MobileNo          string `json:"mobileNo,omitempty"`
	CountryCodeHome   string `json:"countryCodeHome,omitempty"`
	HomeNo            string `json:"homeNo,omitempty"`
	CountryCodeOffice string `json:"countryCodeOffice,omitempty"`
	OfficeNo          string `json:"officeNo,omitempty"`
}

func contactData(t *testing.T, details contactDetails) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(details)
	require.NoError(t, err)
	return raw
}

func completeContactRequest(t *testing.T) model.FormRequest {
	return model.FormRequest{
		Actor:        gofakeit.Username(),
		FormType:     model.FormTypeUpdateContactDetail,
		FormCategory: "CUSTOMER",
		CustomerID:   gofakeit.Numerify("ID########"),
		CustomerName: gofakeit.Name(),
		Branch:       "KL Main",
		Data:         contactData(t, contactDetails{Email: gofakeit.Email()}),
	}
}

// createPending stores a complete form and returns it in PENDING_SYNC.
func (e *testEnv) createPending(t *testing.T) *model.Form {
	t.Helper()
	form, err := e.formsync.CreateForm(context.Background(), completeContactRequest(t))
	require.NoError(t, err)
	require.Equal(t, model.StatusPendingSync, form.Status)
	return form
}

func TestNewFormsync_Defaults(t *testing.T) {
	ds, err := database.NewSQLiteDataSource(":memory:")
	require.NoError(t, err)
	defer ds.Conn.Close()

	f, err := NewFormsync(ds, WithConfig(testConfig()))
	require.NoError(t, err)
	defer f.Close()

	assert.Nil(t, f.redis)
	assert.Nil(t, f.queue)
	assert.Nil(t, f.search)
	assert.IsType(t, &redlock.KeyedMutex{}, f.locks)
	assert.IsType(t, &cache.MemoryCache{}, f.cache)
	assert.IsType(t, &remote.Client{}, f.remote)
	assert.IsType(t, SystemClock{}, f.clock)
	assert.Same(t, ds, f.Datasource())
}

func TestRegisterPredicate_AppliesToNewForms(t *testing.T) {
	env := newTestEnv(t)
	env.formsync.RegisterPredicate("open_account", func(req model.FormRequest) bool {
		return req.CustomerID != ""
	})

	form, err := env.formsync.CreateForm(context.Background(), model.FormRequest{
		Actor:      "officer",
		FormType:   "OPEN_ACCOUNT",
		CustomerID: "ID123",
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingSync, form.Status)
}

func TestWithPredicates(t *testing.T) {
	ds, err := database.NewSQLiteDataSource(":memory:")
	require.NoError(t, err)
	defer ds.Conn.Close()

	registry := NewPredicateRegistry()
	registry.Register(model.FormTypeUpdateContactDetail, func(model.FormRequest) bool { return false })

	f, err := NewFormsync(ds, WithConfig(testConfig()), WithPredicates(registry), WithRemoteClient(&stubRemote{}))
	require.NoError(t, err)

	form, err := f.CreateForm(context.Background(), completeContactRequest(t))
	require.NoError(t, err)
	assert.Equal(t, model.StatusIncomplete, form.Status)
}
