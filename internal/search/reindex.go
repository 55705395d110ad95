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

package search

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/model"
)

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`  // "drop_collections", "indexing_forms", ...
	TotalRecords     int64      `json:"total_records"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ReindexConfig holds configuration for reindexing.
type ReindexConfig struct {
	BatchSize int
}

// FormSource is the read side of the form store used to rebuild the index.
type FormSource interface {
	SearchForms(ctx context.Context, filter model.FormFilter, limit, offset int) ([]model.Form, error)
	GetHistoryByFormID(ctx context.Context, formID string) ([]model.History, error)
}

// Indexer upserts documents into a collection.
type Indexer interface {
	HandleNotification(ctx context.Context, table string, data map[string]interface{}) error
}

// ReindexService handles reindexing operations.
type ReindexService struct {
	client     *TypesenseClient
	indexer    Indexer
	datasource FormSource
	config     ReindexConfig
	progress   *ReindexProgress
	mu         sync.RWMutex
}

// NewReindexService creates a new ReindexService instance.
func NewReindexService(client *TypesenseClient, datasource FormSource, config ReindexConfig) *ReindexService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &ReindexService{
		client:     client,
		indexer:    client,
		datasource: datasource,
		config:     config,
		progress: &ReindexProgress{
			Status: "pending",
		},
	}
}

// GetProgress returns the current progress of the reindex operation.
func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.progress
}

func (r *ReindexService) updateProgress(phase string, processed int64, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
	r.progress.ProcessedRecords = processed
	r.progress.TotalRecords = total
}

func (r *ReindexService) addError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Errors = append(r.progress.Errors, err)
}

// StartReindex drops and recreates the collections, then indexes every form and its history.
func (r *ReindexService) StartReindex(ctx context.Context) (*ReindexProgress, error) {
	r.mu.Lock()
	r.progress = &ReindexProgress{
		Status:    "in_progress",
		Phase:     "starting",
		StartedAt: time.Now(),
	}
	r.mu.Unlock()

	logrus.Info("Starting reindex operation")

	if r.client != nil {
		if err := r.dropCollections(ctx); err != nil {
			return r.failWithError(err, "drop_collections")
		}

		if err := r.createCollections(ctx); err != nil {
			return r.failWithError(err, "create_collections")
		}
	}

	if err := r.indexForms(ctx); err != nil {
		return r.failWithError(err, "indexing_forms")
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	progress := r.GetProgressPtr()
	logrus.WithFields(logrus.Fields{
		"total_records":     progress.TotalRecords,
		"processed_records": progress.ProcessedRecords,
		"duration":          time.Since(progress.StartedAt).String(),
	}).Info("Reindex operation completed")

	return progress, nil
}

// GetProgressPtr returns a pointer to the current progress.
func (r *ReindexService) GetProgressPtr() *ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	progress := *r.progress
	return &progress
}

func (r *ReindexService) failWithError(err error, phase string) (*ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "failed"
	r.progress.Phase = phase
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	return r.GetProgressPtr(), err
}

func (r *ReindexService) dropCollections(ctx context.Context) error {
	r.updateProgress("drop_collections", 0, 0)
	logrus.Info("Dropping all collections")
	return r.client.DropAllCollections(ctx)
}

func (r *ReindexService) createCollections(ctx context.Context) error {
	r.updateProgress("create_collections", 0, 0)
	logrus.Info("Creating collections")
	return r.client.EnsureCollectionsExist(ctx)
}

func (r *ReindexService) indexForms(ctx context.Context) error {
	r.updateProgress("indexing_forms", 0, 0)
	logrus.Info("Starting to index forms")

	var offset int
	var totalIndexed int64
	batchNum := 0

	for {
		forms, err := r.datasource.SearchForms(ctx, model.FormFilter{}, r.config.BatchSize, offset)
		if err != nil {
			return err
		}

		if len(forms) == 0 {
			break
		}

		for _, form := range forms {
			if err := r.indexOne(ctx, CollectionForms, form); err != nil {
				r.addError("form " + form.FormID + ": " + err.Error())
				continue
			}
			totalIndexed++

			entries, err := r.datasource.GetHistoryByFormID(ctx, form.FormID)
			if err != nil {
				r.addError("history " + form.FormID + ": " + err.Error())
				continue
			}
			for _, entry := range entries {
				if err := r.indexOne(ctx, CollectionFormHistory, entry); err != nil {
					r.addError("history " + entry.HistoryID + ": " + err.Error())
				}
			}
		}

		r.updateProgress("indexing_forms", totalIndexed, totalIndexed)

		batchNum++
		if batchNum%100 == 0 {
			logrus.WithFields(logrus.Fields{
				"batch":   batchNum,
				"indexed": totalIndexed,
			}).Info("Form indexing progress")
		}

		if len(forms) < r.config.BatchSize {
			break
		}
		offset += len(forms)
	}

	logrus.WithField("total", totalIndexed).Info("Form indexing completed")
	return nil
}

func (r *ReindexService) indexOne(ctx context.Context, table string, v interface{}) error {
	data, err := ToDocument(v)
	if err != nil {
		return err
	}
	return r.indexer.HandleNotification(ctx, table, data)
}

// ToDocument converts a record into the generic map shape Typesense indexes.
func ToDocument(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// DropCollection deletes a collection from Typesense.
func (t *TypesenseClient) DropCollection(ctx context.Context, collectionName string) error {
	_, err := t.Client.Collection(collectionName).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// DropAllCollections drops all known collections from Typesense.
func (t *TypesenseClient) DropAllCollections(ctx context.Context) error {
	for _, c := range Collections() {
		logrus.WithField("collection", c).Debug("Dropping collection")
		if err := t.DropCollection(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
