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

package model

import (
	"strings"
	"time"
)

// FormFilter holds the search criteria for forms. Zero values are ignored.
// Statuses, when set, takes precedence over Status and is evaluated as a union.
type FormFilter struct {
	FormType       string     `json:"form_type"`
	Status         string     `json:"status"`
	Statuses       []string   `json:"statuses"`
	CustomerName   string     `json:"customer_name"`
	CustomerID     string     `json:"customer_id"`
	FormCategory   string     `json:"form_category"`
	SyncFlag       *bool      `json:"sync_flag"`
	CreatedOnStart *time.Time `json:"created_on_start"`
	CreatedOnEnd   *time.Time `json:"created_on_end"`
}

// IsMultiStatus reports whether the filter asks for more than one status.
func (f FormFilter) IsMultiStatus() bool {
	return len(f.UniqueStatuses()) > 1
}

// UniqueStatuses returns the trimmed, de-duplicated statuses in input order.
func (f FormFilter) UniqueStatuses() []string {
	seen := make(map[string]bool, len(f.Statuses))
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		statuses = append(statuses, s)
	}
	return statuses
}

// ForStatus returns a copy of the filter narrowed to a single status.
func (f FormFilter) ForStatus(status string) FormFilter {
	single := f
	single.Statuses = nil
	single.Status = status
	return single
}

// Normalize folds a single-entry Statuses list into Status.
func (f FormFilter) Normalize() FormFilter {
	statuses := f.UniqueStatuses()
	if len(statuses) == 1 {
		return f.ForStatus(statuses[0])
	}
	if len(statuses) == 0 {
		f.Statuses = nil
		return f
	}
	f.Statuses = statuses
	return f
}

// EndOfDay extends a date-only bound to 23:59:59.999 of the same day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
