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

/*
Package remote talks to the system of record that receives synced forms and
publishes the branch directory. Every call is a single attempt bounded by the
configured timeout.
*/
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/formsync/config"
	"github.com/jerry-enebeli/formsync/model"
)

// ErrNoResponseData is returned when the remote answered 2xx without a usable body.
var ErrNoResponseData = errors.New("no response data received from remote")

// Credentials are forwarded to the remote system as received from the caller.
type Credentials struct {
	AuthorizationCode string
	DbosHS            string
}

type Client struct {
	submitURL   string
	branchesURL string
	httpClient  *http.Client
}

// NewClient builds a client that negotiates TLS 1.2 and gives up after the configured timeout.
func NewClient(cfg config.RemoteConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = config.DEFAULT_REMOTE_TIMEOUT * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // UAT endpoints use self-signed certificates
	}

	return &Client{
		submitURL:   cfg.SubmitURL,
		branchesURL: cfg.BranchesURL,
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

// HTTPClient exposes the underlying client so tests can intercept its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Submit posts a form body to the submit endpoint. Transport failures and non-2xx
// answers are returned as errors; a 2xx answer without a JSON object yields ErrNoResponseData.
func (c *Client) Submit(ctx context.Context, body []byte, creds Credentials) (*model.RemoteSubmission, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("null")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build submit request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AuthorizationCode)
	req.Header.Set("DBOS-HS", creds.DbosHS)

	raw, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "submit form")
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNoResponseData
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(trimmed, &fields); err != nil || len(fields) == 0 {
		logrus.WithField("body", string(trimmed)).Warn("remote submit answered without a JSON object")
		return nil, ErrNoResponseData
	}

	return &model.RemoteSubmission{
		UUID:  stringField(fields, "uuid"),
		RefNo: stringField(fields, "refNo"),
	}, nil
}

// Branches fetches the branch directory. Entries that are not objects are skipped.
func (c *Client) Branches(ctx context.Context, authorizationCode string) ([]model.Branch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.branchesURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build branches request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+authorizationCode)

	raw, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch branches")
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decode branches")
	}

	branches := make([]model.Branch, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		branches = append(branches, model.Branch{
			BranchName:    stringField(e, "branchName"),
			UUID:          stringField(e, "uuid"),
			ConvBranch:    stringField(e, "convBranch"),
			IslamicBranch: stringField(e, "islamicBranch"),
		})
	}
	return branches, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	logrus.WithFields(logrus.Fields{
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Info("remote call completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote responded with status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return raw, nil
}

func stringField(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
