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
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
)

const (
	CollectionForms       = "forms"
	CollectionFormHistory = "form_history"
)

// CollectionConfig holds configuration for a specific collection.
type CollectionConfig struct {
	Schema     *api.CollectionSchema
	IDField    string
	TimeFields []string
}

var collectionConfigs map[string]CollectionConfig

func init() {
	collectionConfigs = map[string]CollectionConfig{
		CollectionForms: {
			Schema:  getFormSchema(),
			IDField: "form_id",
			TimeFields: []string{
				"created_on", "last_modified_on", "synced_on", "sync_attempted_on", "deleted_on",
			},
		},
		CollectionFormHistory: {
			Schema:     getFormHistorySchema(),
			IDField:    "history_id",
			TimeFields: []string{"created_on"},
		},
	}
}

// Collections lists the collections this service maintains.
func Collections() []string {
	return []string{CollectionForms, CollectionFormHistory}
}

// TypesenseClient wraps the Typesense client and provides methods to interact with it.
type TypesenseClient struct {
	Client *typesense.Client
}

// NewTypesenseClient initializes and returns a new Typesense client instance.
func NewTypesenseClient(apiKey string, hosts []string) *TypesenseClient {
	client := typesense.NewClient(
		typesense.WithServer(hosts[0]),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
		typesense.WithCircuitBreakerMaxRequests(50),
		typesense.WithCircuitBreakerInterval(2*time.Minute),
		typesense.WithCircuitBreakerTimeout(1*time.Minute),
	)
	return &TypesenseClient{Client: client}
}

// EnsureCollectionsExist creates any missing collection from the latest schema.
// Typesense often starts after the API in compose setups, so creation is retried for up to a minute.
func (t *TypesenseClient) EnsureCollectionsExist(ctx context.Context) error {
	for _, name := range Collections() {
		cfg := collectionConfigs[name]
		bo := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(time.Minute)), ctx)
		err := backoff.RetryNotify(func() error {
			_, err := t.CreateCollection(ctx, cfg.Schema)
			return err
		}, bo, func(err error, next time.Duration) {
			logrus.Warnf("typesense collection %s not ready, retrying in %s: %v", name, next, err)
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// CreateCollection creates a collection in Typesense based on the provided schema.
// If the collection already exists, it will return without error.
func (t *TypesenseClient) CreateCollection(ctx context.Context, schema *api.CollectionSchema) (*api.CollectionResponse, error) {
	resp, err := t.Client.Collections().Create(ctx, schema)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// Search performs a search query on a specific collection with the provided search parameters.
func (t *TypesenseClient) Search(ctx context.Context, collection string, searchParams *api.SearchCollectionParams) (*api.SearchResult, error) {
	if _, ok := collectionConfigs[collection]; !ok {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}
	return t.Client.Collection(collection).Documents().Search(ctx, searchParams)
}

// HandleNotification normalises a record and upserts it into its collection.
func (t *TypesenseClient) HandleNotification(ctx context.Context, table string, data map[string]interface{}) error {
	config, ok := collectionConfigs[table]
	if !ok {
		return fmt.Errorf("unknown collection: %s", table)
	}

	if err := t.processPayload(data); err != nil {
		return err
	}
	t.ensureSchemaFields(config, data)
	t.normalizeTimeFields(config, data)

	return t.upsertDocument(ctx, table, data)
}

// Delete removes a document; a missing document is not an error.
func (t *TypesenseClient) Delete(ctx context.Context, table, id string) error {
	_, err := t.Client.Collection(table).Document(id).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete document %s from %s: %w", id, table, err)
	}
	return nil
}

// processPayload indexes the opaque form payload as a string so arbitrary
// shapes never break the collection schema.
func (t *TypesenseClient) processPayload(data map[string]interface{}) error {
	payload, ok := data["payload"]
	if !ok {
		return nil
	}
	switch v := payload.(type) {
	case nil:
		data["payload"] = ""
	case string:
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		data["payload"] = string(b)
	}
	return nil
}

// ensureSchemaFields ensures all required schema fields are present with default values
func (t *TypesenseClient) ensureSchemaFields(config CollectionConfig, data map[string]interface{}) {
	optionalFieldMap := make(map[string]bool)
	for _, field := range config.Schema.Fields {
		if field.Optional != nil && *field.Optional {
			optionalFieldMap[field.Name] = true
		}
	}

	for _, field := range config.Schema.Fields {
		if v, ok := data[field.Name]; !ok || v == nil {
			if !optionalFieldMap[field.Name] {
				data[field.Name] = getDefaultValue(field.Type)
			} else {
				delete(data, field.Name)
			}
		}
	}

	for key, value := range data {
		if optionalFieldMap[key] {
			if strVal, ok := value.(string); ok && strVal == "" {
				delete(data, key)
			}
		}
	}
}

// normalizeTimeFields converts time fields to Unix timestamps
func (t *TypesenseClient) normalizeTimeFields(config CollectionConfig, data map[string]interface{}) {
	for _, field := range config.TimeFields {
		fieldValue, ok := data[field]
		if !ok {
			continue
		}
		switch v := fieldValue.(type) {
		case time.Time:
			data[field] = v.Unix()
		case *time.Time:
			if v == nil {
				delete(data, field)
			} else {
				data[field] = v.Unix()
			}
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				delete(data, field)
				continue
			}
			data[field] = parsed.Unix()
		case float64:
			data[field] = int64(v)
		case int64:
		default:
			delete(data, field)
		}
	}
}

// getIDField returns the primary ID field name for a given table
func (t *TypesenseClient) getIDField(table string) string {
	if config, ok := collectionConfigs[table]; ok {
		return config.IDField
	}
	return ""
}

func (t *TypesenseClient) upsertDocument(ctx context.Context, table string, data map[string]interface{}) error {
	idField := t.getIDField(table)
	id, ok := data[idField].(string)
	if !ok || id == "" {
		return fmt.Errorf("document for %s has no %s", table, idField)
	}

	data["id"] = id
	if _, err := t.Client.Collection(table).Documents().Upsert(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert document in Typesense: %w", err)
	}
	return nil
}

// MigrateTypeSenseSchema adds new fields from the latest schema to the existing collection schema in Typesense.
func (t *TypesenseClient) MigrateTypeSenseSchema(ctx context.Context, collectionName string) error {
	config, ok := collectionConfigs[collectionName]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	collection := t.Client.Collection(collectionName)
	currentSchemaResponse, err := collection.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve current schema: %w", err)
	}

	currentSchema := &api.CollectionSchema{
		Name:   currentSchemaResponse.Name,
		Fields: currentSchemaResponse.Fields,
	}

	for _, field := range compareSchemas(currentSchema, config.Schema) {
		updateSchema := &api.CollectionUpdateSchema{
			Fields: []api.Field{field},
		}

		if _, err := collection.Update(ctx, updateSchema); err != nil {
			return fmt.Errorf("failed to add field %s: %w", field.Name, err)
		}
		logrus.Infof("Added new field %s to collection %s", field.Name, collectionName)
	}

	return nil
}

// compareSchemas returns the fields present in newSchema but not in oldSchema.
func compareSchemas(oldSchema, newSchema *api.CollectionSchema) []api.Field {
	var newFields []api.Field
	oldFieldMap := make(map[string]bool)

	for _, field := range oldSchema.Fields {
		oldFieldMap[field.Name] = true
	}

	for _, field := range newSchema.Fields {
		if !oldFieldMap[field.Name] {
			newFields = append(newFields, field)
		}
	}

	return newFields
}

// getDefaultValue returns the default value for a given field type in Typesense.
func getDefaultValue(fieldType string) interface{} {
	switch fieldType {
	case "string":
		return ""
	case "int32", "int64":
		return int64(0)
	case "float":
		return float64(0)
	case "bool":
		return false
	case "string[]":
		return []string{}
	default:
		return nil
	}
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "Not Found") || strings.Contains(msg, "404")
}

func getFormSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "created_on"
	return &api.CollectionSchema{
		Name: CollectionForms,
		Fields: []api.Field{
			{Name: "form_id", Type: "string"},
			{Name: "remote_id", Type: "string", Optional: &optional},
			{Name: "reference_number", Type: "string", Optional: &optional},
			{Name: "form_type", Type: "string", Facet: &facet},
			{Name: "form_category", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "sync_status", Type: "string", Facet: &facet},
			{Name: "sync_flag", Type: "bool", Facet: &facet},
			{Name: "customer_name", Type: "string"},
			{Name: "customer_id", Type: "string", Facet: &facet},
			{Name: "branch", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "created_by", Type: "string", Facet: &facet},
			{Name: "last_modified_by", Type: "string", Optional: &optional},
			{Name: "payload", Type: "string", Optional: &optional},
			{Name: "created_on", Type: "int64"},
			{Name: "last_modified_on", Type: "int64", Optional: &optional},
			{Name: "synced_on", Type: "int64", Optional: &optional},
			{Name: "sync_attempted_on", Type: "int64", Optional: &optional},
			{Name: "deleted_on", Type: "int64", Optional: &optional},
		},
		DefaultSortingField: &sortBy,
	}
}

func getFormHistorySchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "created_on"
	return &api.CollectionSchema{
		Name: CollectionFormHistory,
		Fields: []api.Field{
			{Name: "history_id", Type: "string"},
			{Name: "form_id", Type: "string", Facet: &facet},
			{Name: "remark", Type: "string"},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "category_code", Type: "string", Facet: &facet},
			{Name: "error_message", Type: "string", Optional: &optional},
			{Name: "created_on", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}
