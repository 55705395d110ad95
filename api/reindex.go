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
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jerry-enebeli/formsync/internal/search"
)

// ReindexRequest is the optional body of POST /search/reindex.
type ReindexRequest struct {
	BatchSize int `json:"batch_size"`
}

type reindexManager struct {
	service *search.ReindexService
	mu      sync.RWMutex
}

// StartReindex rebuilds the form collection in the background.
//
// Responses:
// - 202 Accepted: reindex started, returns initial progress.
// - 400 Bad Request: search is not configured.
// - 409 Conflict: a reindex is already in progress.
func (a Api) StartReindex(c *gin.Context) {
	var req ReindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.BatchSize = 0
	}

	a.reindex.mu.Lock()
	if a.reindex.service != nil {
		progress := a.reindex.service.GetProgress()
		if progress.Status == "in_progress" {
			a.reindex.mu.Unlock()
			c.JSON(http.StatusConflict, gin.H{
				"error":    "A reindex operation is already in progress",
				"progress": progress,
			})
			return
		}
	}

	svc, err := a.formsync.NewReindexService(req.BatchSize)
	if err != nil {
		a.reindex.mu.Unlock()
		respondError(c, err)
		return
	}
	a.reindex.service = svc
	a.reindex.mu.Unlock()

	go func() {
		_, _ = svc.StartReindex(context.Background())
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Reindex operation started",
		"progress": svc.GetProgress(),
	})
}

// GetReindexProgress returns 404 until a reindex has been started.
func (a Api) GetReindexProgress(c *gin.Context) {
	a.reindex.mu.RLock()
	defer a.reindex.mu.RUnlock()

	if a.reindex.service == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reindex operation has been started"})
		return
	}
	c.JSON(http.StatusOK, a.reindex.service.GetProgress())
}
