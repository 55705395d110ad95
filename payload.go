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
	"bytes"
	"encoding/json"

	"github.com/jerry-enebeli/formsync/model"
)

// builtPayload is the stored payload and the completeness verdict for a request.
type builtPayload struct {
	Payload  string
	Complete bool
}

// buildPayload serialises the request data compactly and evaluates completeness.
// A request without data stores "{}".
func (f *Formsync) buildPayload(req model.FormRequest) builtPayload {
	payload := "{}"
	if req.HasData() {
		var buf bytes.Buffer
		if err := json.Compact(&buf, req.Data); err == nil {
			payload = buf.String()
		} else {
			payload = string(req.Data)
		}
	}
	return builtPayload{Payload: payload, Complete: f.predicates.IsComplete(req)}
}

func statusFor(complete bool) string {
	if complete {
		return model.StatusPendingSync
	}
	return model.StatusIncomplete
}
