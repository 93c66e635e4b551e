// Package tfs reads completed work items from a TFS / Azure DevOps tracker
// and turns them into tasks.
package tfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	apiVersion = "5.0"
	batchSize  = 200
)

// ErrUnauthorized reports a rejected personal access token.
var ErrUnauthorized = errors.New("tracker rejected credentials")

// StatusError is returned for unexpected tracker responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracker %s: HTTP %d: %s", e.URL, e.Status, e.Body)
}

// Client talks to the tracker REST API.
type Client struct {
	base string
	http *http.Client
	pat  string
}

// NewClient returns a client for the server at baseURL. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// WithPAT returns a copy of the client authenticating with pat.
func (c *Client) WithPAT(pat string) *Client {
	cp := *c
	cp.pat = pat

	return &cp
}

type wiqlRequest struct {
	Query string `json:"query"`
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// Query runs a WIQL query in project and returns the matching ids.
func (c *Client) Query(ctx context.Context, project, wiql string) ([]int, error) {
	body, err := json.Marshal(wiqlRequest{Query: wiql})
	if err != nil {
		return nil, err
	}

	u := c.base + "/" + project + "/_apis/wit/wiql?api-version=" + apiVersion

	var resp wiqlResponse

	err = c.do(ctx, http.MethodPost, u, body, &resp)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", project, err)
	}

	ids := make([]int, 0, len(resp.WorkItems))
	for _, w := range resp.WorkItems {
		ids = append(ids, w.ID)
	}

	return ids, nil
}

type itemsResponse struct {
	Value []Item `json:"value"`
}

// Items fetches work items of project with all fields and relations, in
// batches the API accepts.
func (c *Client) Items(ctx context.Context, project string, ids []int) ([]Item, error) {
	out := make([]Item, 0, len(ids))

	for start := 0; start < len(ids); start += batchSize {
		batch := ids[start:min(start+batchSize, len(ids))]

		parts := make([]string, len(batch))
		for i, id := range batch {
			parts[i] = strconv.Itoa(id)
		}

		q := url.Values{}
		q.Set("ids", strings.Join(parts, ","))
		q.Set("$expand", "all")
		q.Set("api-version", apiVersion)

		var resp itemsResponse

		err := c.do(ctx, http.MethodGet, c.base+"/"+project+"/_apis/wit/workitems?"+q.Encode(), nil, &resp)
		if err != nil {
			return nil, fmt.Errorf("fetch items of %s: %w", project, err)
		}

		out = append(out, resp.Value...)
	}

	return out, nil
}

// ItemAt fetches the work item a relation URL points to.
func (c *Client) ItemAt(ctx context.Context, itemURL string) (Item, error) {
	u, err := url.Parse(itemURL)
	if err != nil {
		return Item{}, fmt.Errorf("parse item url %q: %w", itemURL, err)
	}

	q := u.Query()
	q.Set("$expand", "all")
	q.Set("api-version", apiVersion)
	u.RawQuery = q.Encode()

	var item Item

	err = c.do(ctx, http.MethodGet, u.String(), nil, &item)
	if err != nil {
		return Item{}, err
	}

	return item, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.pat != "" {
		req.SetBasicAuth("", c.pat)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return &StatusError{URL: u, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}

	return nil
}
