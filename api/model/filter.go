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
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wacul/ptr"

	"github.com/jerry-enebeli/formsync/model"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 timestamps and plain dates. dateOnly reports the latter.
func parseDate(value string) (t time.Time, dateOnly bool, err error) {
	for _, layout := range dateLayouts {
		if t, err = time.Parse(layout, value); err == nil {
			return t, layout == "2006-01-02", nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", value)
}

// splitList reads a repeated or comma separated query parameter.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func firstOf(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(values.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// ParseFormFilter reads search criteria from query parameters. Legacy clients
// send isFormSync or formSync in place of syncFlag.
func ParseFormFilter(values url.Values) (model.FormFilter, error) {
	filter := model.FormFilter{
		FormType:     firstOf(values, "formType"),
		Status:       firstOf(values, "status"),
		Statuses:     splitList(values["statuses"]),
		CustomerName: firstOf(values, "customerName"),
		CustomerID:   firstOf(values, "customerId"),
		FormCategory: firstOf(values, "formCategory"),
	}

	if raw := firstOf(values, "syncFlag", "isFormSync", "formSync"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid syncFlag %q", raw)
		}
		filter.SyncFlag = ptr.Bool(b)
	}

	if raw := firstOf(values, "createdOnStart"); raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedOnStart = ptr.Time(t)
	}

	if raw := firstOf(values, "createdOnEnd"); raw != "" {
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		if dateOnly {
			t = model.EndOfDay(t)
		}
		filter.CreatedOnEnd = ptr.Time(t)
	}

	return filter, nil
}

// ParsePage reads limit and offset, defaulting to the first DefaultLimit rows.
func ParsePage(values url.Values) (limit, offset int, err error) {
	limit, offset = DefaultLimit, 0
	if raw := values.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
	}
	if raw := values.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
	}
	return limit, offset, nil
}
