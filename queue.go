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
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"
	redis_db "github.com/jerry-enebeli/formsync/internal/redis-db"
	"github.com/jerry-enebeli/formsync/internal/search"
)

// Queue carries webhook deliveries and search indexing to the workers.
type Queue struct {
	Client       *asynq.Client
	Inspector    *asynq.Inspector
	webhookQueue string
	indexQueue   string
}

// IndexTask asks a worker to upsert or remove one document.
type IndexTask struct {
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Delete     bool                   `json:"delete,omitempty"`
}

// RedisClientOpt converts the configured Redis DNS into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	return &Queue{
		Client:       asynq.NewClient(queueOptions),
		Inspector:    asynq.NewInspector(queueOptions),
		webhookQueue: conf.Queue.WebhookQueue,
		indexQueue:   conf.Queue.IndexQueue,
	}, nil
}

func (q *Queue) enqueue(ctx context.Context, queue string, payload interface{}, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(queue)}, opts...)
	return q.Client.EnqueueContext(ctx, asynq.NewTask(queue, body, opts...))
}

// queueIndexData enqueues an upsert of data into collection.
func (q *Queue) queueIndexData(ctx context.Context, id, collection string, data interface{}) error {
	doc, err := search.ToDocument(data)
	if err != nil {
		return err
	}

	info, err := q.enqueue(ctx, q.indexQueue, IndexTask{Collection: collection, ID: id, Payload: doc}, asynq.MaxRetry(5))
	if err != nil {
		logrus.WithError(err).WithField("id", id).Error("failed to enqueue index data")
		return err
	}
	logrus.WithFields(logrus.Fields{"id": id, "task_id": info.ID}).Debug("enqueued index data")
	return nil
}

// queueIndexDelete enqueues the removal of a document.
func (q *Queue) queueIndexDelete(ctx context.Context, id, collection string) error {
	_, err := q.enqueue(ctx, q.indexQueue, IndexTask{Collection: collection, ID: id, Delete: true}, asynq.MaxRetry(5))
	return err
}

// queueWebhook enqueues a webhook delivery.
func (q *Queue) queueWebhook(ctx context.Context, hook NewWebhook) error {
	info, err := q.enqueue(ctx, q.webhookQueue, hook, asynq.MaxRetry(10))
	if err != nil {
		logrus.WithError(err).WithField("event", hook.Event).Error("failed to enqueue webhook")
		return err
	}
	logrus.WithFields(logrus.Fields{"event": hook.Event, "task_id": info.ID}).Debug("enqueued webhook")
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// ProcessIndexTask applies one queued index operation.
func (f *Formsync) ProcessIndexTask(ctx context.Context, task *asynq.Task) error {
	if f.search == nil {
		return nil
	}

	var payload IndexTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if payload.Delete {
		return f.search.Delete(ctx, payload.Collection, payload.ID)
	}
	return f.search.HandleNotification(ctx, payload.Collection, payload.Payload)
}
