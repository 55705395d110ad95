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

	"github.com/gin-gonic/gin"

	apimodel "github.com/jerry-enebeli/formsync/api/model"
	"github.com/jerry-enebeli/formsync/internal/apierror"
	"github.com/jerry-enebeli/formsync/model"
)

// ListForms returns a page of every stored form, newest first.
func (a Api) ListForms(c *gin.Context) {
	limit, offset, err := apimodel.ParsePage(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	forms, total, err := a.formsync.SearchForms(c.Request.Context(), model.FormFilter{}, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apimodel.FormPage{Items: forms, TotalCount: total})
}

// SearchForms handles filtered form lookups. Repeated or comma separated
// statuses are matched as a union, and dates are compared by calendar day.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 400 Bad Request: If a filter value or the paging parameters cannot be parsed.
// - 500 Internal Server Error: If the store cannot be queried.
// - 200 OK: The matching page and the total count across all pages.
func (a Api) SearchForms(c *gin.Context) {
	query := c.Request.URL.Query()
	filter, err := apimodel.ParseFormFilter(query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, offset, err := apimodel.ParsePage(query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	forms, total, err := a.formsync.SearchForms(c.Request.Context(), filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apimodel.FormPage{Items: forms, TotalCount: total})
}

// GetForm returns a form together with its history, newest entry first.
func (a Api) GetForm(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	form, history, err := a.formsync.GetFormWithHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apimodel.FormDetail{Form: form, History: history})
}

// CreateForm handles the creation of a new form. The form starts as PENDING_SYNC
// when its data passes the completeness rule for its type and INCOMPLETE otherwise.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 400 Bad Request: If the body is malformed or created_by or form_type is missing.
// - 500 Internal Server Error: If the form or its history cannot be stored.
// - 201 Created: The stored form.
func (a Api) CreateForm(c *gin.Context) {
	var newForm apimodel.CreateForm
	if err := c.ShouldBindJSON(&newForm); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newForm.ValidateCreateForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.formsync.CreateForm(c.Request.Context(), newForm.ToFormRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// UpdateForm rewrites the fields carried by the request body.
func (a Api) UpdateForm(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var update apimodel.UpdateForm
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := update.ValidateUpdateForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.formsync.UpdateForm(c.Request.Context(), id, update.ToFormRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CancelForm soft deletes a form on behalf of the modifiedBy query parameter.
func (a Api) CancelForm(c *gin.Context) {
	id := c.Param("id")
	resp, err := a.formsync.CancelForm(c.Request.Context(), id, c.Query("modifiedBy"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteForm permanently removes a form and its history.
func (a Api) DeleteForm(c *gin.Context) {
	id := c.Param("id")
	if err := a.formsync.DeleteForm(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Form deleted successfully", "form_id": id})
}

// SyncForm submits a form to the remote system exactly once.
//
// Parameters:
// - c: The Gin context containing the request and response.
//
// Responses:
// - 404 Not Found: If the form does not exist.
// - 409 Conflict: If the form is not in a syncable status or another sync holds it.
// - 500 Internal Server Error: If the remote call failed. The body is the recorded sync result.
// - 200 OK: The sync result, including answers that carried no usable data.
func (a Api) SyncForm(c *gin.Context) {
	id := c.Param("id")

	var req apimodel.SyncForm
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.formsync.SyncForm(c.Request.Context(), id, req.ToCredentials())
	if err != nil {
		if result != nil && apierror.Is(err, apierror.ErrRemoteSync) {
			c.JSON(http.StatusInternalServerError, result)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a Api) GetFormHistory(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.formsync.GetForm(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	history, err := a.formsync.GetHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Purge runs the expiry sweeps now. Omitted windows fall back to the configured ones.
func (a Api) Purge(c *gin.Context) {
	var req apimodel.Purge
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
	}
	if err := req.ValidatePurge(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.formsync.Purge(c.Request.Context(), req.SyncDays, req.StaleDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a Api) GetBranches(c *gin.Context) {
	var req apimodel.Branches
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateBranches(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	branches, err := a.formsync.GetBranches(c.Request.Context(), req.AuthorizationCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, branches)
}
