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
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/internal/request"
	"github.com/jerry-enebeli/formsync/internal/search"
	"github.com/jerry-enebeli/formsync/model"
)

const (
	EventFormCreated    = "form.created"
	EventFormUpdated    = "form.updated"
	EventFormCancelled  = "form.cancelled"
	EventFormDeleted    = "form.deleted"
	EventFormSynced     = "form.synced"
	EventFormSyncFailed = "form.sync_failed"
)

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// getSyncEvent maps the status a sync attempt left behind to its event.
func getSyncEvent(status string) string {
	if status == model.StatusSynchronizationComplete {
		return EventFormSynced
	}
	return EventFormSyncFailed
}

// SendWebhook enqueues a webhook notification. It is a no-op without a webhook URL or a queue.
func (f *Formsync) SendWebhook(ctx context.Context, hook NewWebhook) error {
	if f.queue == nil || f.config.Notification.Webhook.Url == "" {
		return nil
	}
	return f.queue.queueWebhook(ctx, hook)
}

// ProcessWebhook delivers a queued webhook notification.
func (f *Formsync) ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	if f.config.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling task payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.WithField("event", payload.Event).Info("processing webhook")
	return f.processHTTP(ctx, payload)
}

func (f *Formsync) processHTTP(ctx context.Context, data NewWebhook) error {
	body, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for key, value := range f.config.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(req, nil); err != nil {
		return err
	}
	logrus.WithField("event", data.Event).Info("webhook notification sent")
	return nil
}

// publish fans a form change out to webhooks and the search index. Failures
// are logged and never fail the mutation that triggered them.
func (f *Formsync) publish(ctx context.Context, event string, form *model.Form) {
	if form == nil {
		return
	}

	if err := f.SendWebhook(ctx, NewWebhook{Event: event, Payload: form}); err != nil {
		logrus.WithFields(logrus.Fields{"form_id": form.FormID, "event": event}).Errorf("webhook enqueue failed: %v", err)
	}

	if f.queue == nil || f.search == nil {
		return
	}
	var err error
	if event == EventFormDeleted {
		err = f.queue.queueIndexDelete(ctx, form.FormID, search.CollectionForms)
	} else {
		err = f.queue.queueIndexData(ctx, form.FormID, search.CollectionForms, form)
	}
	if err != nil {
		logrus.WithField("form_id", form.FormID).Errorf("index enqueue failed: %v", err)
	}
}
