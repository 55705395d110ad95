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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/database"
	"github.com/jerry-enebeli/formsync/internal/cache"
	redlock "github.com/jerry-enebeli/formsync/internal/lock"
	"github.com/jerry-enebeli/formsync/internal/notification"
	redis_db "github.com/jerry-enebeli/formsync/internal/redis-db"
	"github.com/jerry-enebeli/formsync/internal/remote"
	"github.com/jerry-enebeli/formsync/internal/search"
	"github.com/jerry-enebeli/formsync/model"
)

// RemoteClient is the system of record that receives synced forms.
type RemoteClient interface {
	Submit(ctx context.Context, body []byte, creds remote.Credentials) (*model.RemoteSubmission, error)
	Branches(ctx context.Context, authorizationCode string) ([]model.Branch, error)
}

// Formsync owns the form store and every collaborator the lifecycle needs.
type Formsync struct {
	datasource database.IDataSource
	config     *config.Configuration
	remote     RemoteClient
	redis      redis.UniversalClient
	locks      redlock.Provider
	cache      cache.Cache
	queue      *Queue
	search     *search.TypesenseClient
	clock      Clock
	predicates *PredicateRegistry
}

// Option customises a Formsync at construction.
type Option func(*Formsync)

func WithConfig(cfg *config.Configuration) Option {
	return func(f *Formsync) { f.config = cfg }
}

func WithRemoteClient(client RemoteClient) Option {
	return func(f *Formsync) { f.remote = client }
}

// WithRedis shares an existing client for locks, caching and the task queue.
func WithRedis(client redis.UniversalClient) Option {
	return func(f *Formsync) { f.redis = client }
}

func WithLockProvider(p redlock.Provider) Option {
	return func(f *Formsync) { f.locks = p }
}

func WithCache(c cache.Cache) Option {
	return func(f *Formsync) { f.cache = c }
}

func WithQueue(q *Queue) Option {
	return func(f *Formsync) { f.queue = q }
}

func WithSearch(s *search.TypesenseClient) Option {
	return func(f *Formsync) { f.search = s }
}

func WithClock(c Clock) Option {
	return func(f *Formsync) { f.clock = c }
}

func WithPredicates(r *PredicateRegistry) Option {
	return func(f *Formsync) { f.predicates = r }
}

// NewFormsync wires a service around db. Collaborators not passed as options are
// built from the loaded configuration; Redis, Typesense and webhooks are only
// enabled when configured.
func NewFormsync(db database.IDataSource, options ...Option) (*Formsync, error) {
	f := &Formsync{datasource: db}
	for _, opt := range options {
		opt(f)
	}

	if f.config == nil {
		cfg, err := config.Fetch()
		if err != nil {
			return nil, err
		}
		f.config = cfg
	}

	if f.redis == nil && f.config.Redis.Dns != "" {
		client, err := redis_db.NewRedisClient(redis_db.SplitAddresses(f.config.Redis.Dns), f.config.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		f.redis = client.Client()
	}

	if f.remote == nil {
		f.remote = remote.NewClient(f.config.Remote)
	}
	if f.locks == nil {
		f.locks = redlock.NewProvider(f.redis)
	}
	if f.cache == nil {
		f.cache = cache.New(f.redis)
	}
	if f.queue == nil && f.config.Redis.Dns != "" {
		q, err := NewQueue(f.config)
		if err != nil {
			return nil, err
		}
		f.queue = q
	}
	if f.search == nil && f.config.TypeSense.Dns != "" {
		f.search = search.NewTypesenseClient(f.config.TypeSenseKey, []string{f.config.TypeSense.Dns})
	}
	if f.clock == nil {
		f.clock = SystemClock{}
	}
	if f.predicates == nil {
		f.predicates = NewPredicateRegistry()
	}

	if f.queue != nil && f.config.Notification.Webhook.Url != "" {
		notification.RegisterWebhookSender(func(event string, payload interface{}) error {
			return f.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
		})
	}

	logrus.WithFields(logrus.Fields{
		"redis":     f.redis != nil,
		"typesense": f.search != nil,
		"queue":     f.queue != nil,
	}).Info("formsync initialised")

	return f, nil
}

// RegisterPredicate adds or replaces the completeness rule for a form type.
func (f *Formsync) RegisterPredicate(formType string, fn CompletenessPredicate) {
	f.predicates.Register(formType, fn)
}

// Datasource exposes the underlying store for commands that operate on it directly.
func (f *Formsync) Datasource() database.IDataSource {
	return f.datasource
}

func (f *Formsync) Config() *config.Configuration {
	return f.config
}

// Close releases the queue and Redis connections.
func (f *Formsync) Close() error {
	if f.queue != nil {
		if err := f.queue.Close(); err != nil {
			logrus.Errorf("closing queue: %v", err)
		}
	}
	if f.redis != nil {
		return f.redis.Close()
	}
	return nil
}
