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
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jerry-enebeli/formsync/model"
)

// CompletenessPredicate reports whether a request carries enough data to be synced.
type CompletenessPredicate func(req model.FormRequest) bool

// PredicateRegistry maps upper-cased form types to their completeness rule.
// Types without a rule fall back to DefaultCompleteness.
type PredicateRegistry struct {
	mu    sync.RWMutex
	rules map[string]CompletenessPredicate
}

func NewPredicateRegistry() *PredicateRegistry {
	r := &PredicateRegistry{rules: make(map[string]CompletenessPredicate)}
	r.Register(model.FormTypeUpdateContactDetail, ContactDetailCompleteness)
	return r
}

// Register adds or replaces the rule for formType.
func (r *PredicateRegistry) Register(formType string, fn CompletenessPredicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[normalizeFormType(formType)] = fn
}

func (r *PredicateRegistry) lookup(formType string) CompletenessPredicate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.rules[normalizeFormType(formType)]; ok {
		return fn
	}
	return DefaultCompleteness
}

// IsComplete evaluates the rule registered for the request's form type.
func (r *PredicateRegistry) IsComplete(req model.FormRequest) bool {
	return r.lookup(req.FormType)(req)
}

func normalizeFormType(formType string) string {
	return strings.ToUpper(strings.TrimSpace(formType))
}

// ContactDetailCompleteness rejects half-filled phone pairs and requests with
// neither an email nor any phone field.
func ContactDetailCompleteness(req model.FormRequest) bool {
	data, ok := dataObject(req)
	if !ok {
		return false
	}

	pairs := [][2]string{
		{"countryCodeMobile", "mobileNo"},
		{"countryCodeHome", "homeNo"},
		{"countryCodeOffice", "officeNo"},
	}

	anyPhone := false
	for _, pair := range pairs {
		code, number := filled(data, pair[0]), filled(data, pair[1])
		if code != number {
			return false
		}
		anyPhone = anyPhone || code
	}

	return anyPhone || filled(data, "email")
}

// DefaultCompleteness requires a non-empty data object and the customer's id and name.
func DefaultCompleteness(req model.FormRequest) bool {
	data, ok := dataObject(req)
	if !ok || len(data) == 0 {
		return false
	}
	return strings.TrimSpace(req.CustomerID) != "" && strings.TrimSpace(req.CustomerName) != ""
}

func dataObject(req model.FormRequest) (map[string]interface{}, bool) {
	if !req.HasData() {
		return nil, false
	}
	var data map[string]interface{}
	if err := json.Unmarshal(req.Data, &data); err != nil || data == nil {
		return nil, false
	}
	return data, true
}

func filled(data map[string]interface{}, key string) bool {
	switch v := data[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case bool:
		return v
	default:
		return strings.TrimSpace(fmt.Sprint(v)) != ""
	}
}
