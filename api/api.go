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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/formsync"
	"github.com/jerry-enebeli/formsync/api/middleware"
	"github.com/jerry-enebeli/formsync/internal/apierror"
)

type Api struct {
	formsync *formsync.Formsync
	router   *gin.Engine
	reindex  *reindexManager
}

func (a Api) Router() *gin.Engine {
	router := a.router

	forms := router.Group("/api/forms")
	forms.GET("", a.ListForms)
	forms.GET("/search", a.SearchForms)
	forms.GET("/:id", a.GetForm)
	forms.POST("", a.CreateForm)
	forms.PUT("/:id", a.UpdateForm)
	forms.PATCH("/:id/cancel", a.CancelForm)
	forms.DELETE("/:id", a.DeleteForm)
	forms.POST("/:id/sync", a.SyncForm)
	forms.POST("/branches", a.GetBranches)
	forms.GET("/:id/history", a.GetFormHistory)

	router.POST("/api/purge", a.Purge)
	router.POST("/api/branches", a.GetBranches)

	legacy := router.Group("/form")
	legacy.POST("/requestForm", a.LegacyRequestForm)
	legacy.PUT("/update", a.LegacyUpdateForm)
	legacy.GET("/list", a.LegacyListForms)
	legacy.GET("/selected", a.LegacySelectedForm)
	legacy.PUT("/cancel", a.LegacyCancelForm)
	legacy.GET("/search", a.LegacySearchForms)
	legacy.POST("/branches", a.LegacyBranches)
	legacy.POST("/sync", a.LegacySyncForm)
	router.GET("/history/search", a.LegacyHistorySearch)

	router.GET("/backup", a.BackupDB)
	router.GET("/backup-s3", a.BackupDBS3)

	router.POST("/search/:collection", a.Search)
	router.POST("/search/reindex", a.StartReindex)
	router.GET("/search/reindex", a.GetReindexProgress)
	return a.router
}

func NewAPI(f *formsync.Formsync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf := f.Config()

	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	r.GET("/health", func(c *gin.Context) {
		if err := f.Datasource().Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Api{formsync: f, router: r, reindex: &reindexManager{}}
}

// respondError writes err with the status its code maps to.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func errorMessage(err error) string {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.formsync.Search(c.Request.Context(), collection, &query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}
