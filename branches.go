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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/internal/cache"
	"github.com/jerry-enebeli/formsync/model"
)

func branchCacheKey(authorizationCode string) string {
	sum := sha256.Sum256([]byte(authorizationCode))
	return "branches:" + hex.EncodeToString(sum[:])
}

// GetBranches returns the remote branch directory, cached per authorization code.
func (f *Formsync) GetBranches(ctx context.Context, authorizationCode string) ([]model.Branch, error) {
	if strings.TrimSpace(authorizationCode) == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "authorization code is required", nil)
	}

	key := branchCacheKey(authorizationCode)
	var branches []model.Branch
	err := f.cache.Get(ctx, key, &branches)
	if err == nil {
		return branches, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logrus.Warnf("branch cache read failed: %v", err)
	}

	branches, err = f.remote.Branches(ctx, authorizationCode)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrRemoteSync, "Failed to fetch branches", err.Error())
	}

	ttl := time.Duration(f.config.BranchCacheTTLSec) * time.Second
	if ttl > 0 {
		if err := f.cache.Set(ctx, key, branches, ttl); err != nil {
			logrus.Warnf("branch cache write failed: %v", err)
		}
	}
	return branches, nil
}
