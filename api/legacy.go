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
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apimodel "github.com/jerry-enebeli/formsync/api/model"
	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

// The /form routes answer 200 even on failure, with {} or [] as the body,
// because older clients treat any other status as a crash.

var emptyObject = gin.H{}

func emptyList() []interface{} { return []interface{}{} }

// LegacyRequestForm creates a form from the camelCase body older clients send.
// A missing createdBy is recorded as "system".
func (a Api) LegacyRequestForm(c *gin.Context) {
	var req apimodel.LegacyFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Warnf("requestForm: %v", err)
		c.JSON(http.StatusOK, emptyObject)
		return
	}

	form, err := a.formsync.CreateForm(c.Request.Context(), req.ToFormRequest(false))
	if err != nil {
		logrus.Errorf("requestForm: %v", err)
		c.JSON(http.StatusOK, emptyObject)
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForm(*form))
}

func (a Api) LegacyUpdateForm(c *gin.Context) {
	uuid := c.Query("uuid")
	if uuid == "" {
		c.JSON(http.StatusOK, emptyObject)
		return
	}

	var req apimodel.LegacyFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Warnf("update: %v", err)
		c.JSON(http.StatusOK, emptyObject)
		return
	}

	form, err := a.formsync.UpdateForm(c.Request.Context(), uuid, req.ToFormRequest(true))
	if err != nil {
		logrus.Errorf("update %s: %v", uuid, err)
		c.JSON(http.StatusOK, emptyObject)
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForm(*form))
}

func (a Api) LegacyListForms(c *gin.Context) {
	statuses := c.QueryArray("status")
	filter := model.FormFilter{}
	for _, s := range statuses {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, part)
			}
		}
	}

	forms, _, err := a.formsync.SearchForms(c.Request.Context(), filter, 0, 0)
	if err != nil {
		logrus.Errorf("list: %v", err)
		c.JSON(http.StatusOK, emptyList())
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForms(forms))
}

func (a Api) LegacySelectedForm(c *gin.Context) {
	uuid := c.Query("uuid")
	if uuid == "" {
		c.JSON(http.StatusOK, emptyObject)
		return
	}

	form, err := a.formsync.GetForm(c.Request.Context(), uuid)
	if err != nil {
		if !apierror.Is(err, apierror.ErrNotFound) {
			logrus.Errorf("selected %s: %v", uuid, err)
		}
		c.JSON(http.StatusOK, emptyObject)
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForm(*form))
}

// LegacyCancelForm cancels ?uuid. A missing modifiedBy is recorded as "system".
func (a Api) LegacyCancelForm(c *gin.Context) {
	uuid := c.Query("uuid")
	if uuid == "" {
		c.JSON(http.StatusOK, emptyObject)
		return
	}

	form, err := a.formsync.CancelForm(c.Request.Context(), uuid, apimodel.LegacyActor(c.Query("modifiedBy")))
	if err != nil {
		logrus.Errorf("cancel %s: %v", uuid, err)
		c.JSON(http.StatusOK, emptyObject)
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForm(*form))
}

// LegacySearchForms returns every match; the legacy route has no paging.
func (a Api) LegacySearchForms(c *gin.Context) {
	filter, err := apimodel.ParseFormFilter(c.Request.URL.Query())
	if err != nil {
		logrus.Warnf("search: %v", err)
		c.JSON(http.StatusOK, emptyList())
		return
	}

	forms, _, err := a.formsync.SearchForms(c.Request.Context(), filter, 0, 0)
	if err != nil {
		logrus.Errorf("search: %v", err)
		c.JSON(http.StatusOK, emptyList())
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyForms(forms))
}

func (a Api) LegacyBranches(c *gin.Context) {
	var req apimodel.Branches
	if err := c.ShouldBindJSON(&req); err != nil || req.ValidateBranches() != nil {
		c.JSON(http.StatusOK, emptyList())
		return
	}

	branches, err := a.formsync.GetBranches(c.Request.Context(), req.AuthorizationCode)
	if err != nil || len(branches) == 0 {
		c.JSON(http.StatusOK, emptyList())
		return
	}
	c.JSON(http.StatusOK, branches)
}

// LegacySyncForm answers 200 for a missing form and 500 when the remote call
// itself failed, matching what older clients already handle.
func (a Api) LegacySyncForm(c *gin.Context) {
	uuid := c.Query("uuid")

	var req apimodel.SyncForm
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error", "error": err.Error()})
		return
	}

	result, err := a.formsync.SyncForm(c.Request.Context(), uuid, req.ToCredentials())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, apimodel.NewLegacySyncResult(*result))
	case apierror.Is(err, apierror.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"uuid": uuid, "error": true, "message": "Form not found"})
	case apierror.Is(err, apierror.ErrConflict):
		c.JSON(http.StatusOK, gin.H{"uuid": uuid, "error": true, "message": errorMessage(err)})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error", "error": errorMessage(err)})
	}
}

func (a Api) LegacyHistorySearch(c *gin.Context) {
	uuid := c.Query("uuid")
	if uuid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "UUID parameter is required"})
		return
	}

	history, err := a.formsync.GetHistory(c.Request.Context(), uuid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, apimodel.NewLegacyHistory(history))
}
