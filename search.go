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

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/internal/search"
)

// Search performs a search on the specified Typesense collection.
func (f *Formsync) Search(ctx context.Context, collection string, query *api.SearchCollectionParams) (interface{}, error) {
	if f.search == nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "search is not configured", nil)
	}
	return f.search.Search(ctx, collection, query)
}

// EnsureSearchCollections creates and migrates the Typesense collections.
func (f *Formsync) EnsureSearchCollections(ctx context.Context) error {
	if f.search == nil {
		return nil
	}
	if err := f.search.EnsureCollectionsExist(ctx); err != nil {
		return err
	}
	for _, c := range search.Collections() {
		if err := f.search.MigrateTypeSenseSchema(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// NewReindexService prepares a rebuild of the search collections from the form store.
func (f *Formsync) NewReindexService(batchSize int) (*search.ReindexService, error) {
	if f.search == nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "search is not configured", nil)
	}
	return search.NewReindexService(f.search, f.datasource, search.ReindexConfig{BatchSize: batchSize}), nil
}

// Reindex rebuilds the search collections and waits for the result.
func (f *Formsync) Reindex(ctx context.Context) (*search.ReindexProgress, error) {
	svc, err := f.NewReindexService(0)
	if err != nil {
		return nil, err
	}
	return svc.StartReindex(ctx)
}
