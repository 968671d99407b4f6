/*
	Client for the paste service's REST API.

	Only the calls the uploader needs are here: create a paste from text files,
	and delete one.  The heavy files never go through this API; see the heavy
	package for how they get in.
*/
package gists

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/gist/api"
	"github.com/polydawn/gist/config"
)

const (
	mediaType        = "application/vnd.github.v3+json"
	defaultUserAgent = "gist-uploader"
)

type Client struct {
	BaseURL   string // e.g. "https://api.github.com", no trailing slash
	Token     string
	UserAgent string       // defaults to "gist-uploader"
	HTTP      *http.Client // defaults to http.DefaultClient
}

func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
	}
}

/*
	Build a client from the environment: the API base from `GIST_API_URL`,
	and the token from the usual sources (see config.GetToken).

	May return errors of category:

	  - `api.ErrAuth` -- if there's no token anywhere
	  - `api.ErrIO` -- if the token file can't be read
*/
func NewClientFromConfig() (*Client, error) {
	tok, err := config.GetToken()
	if err != nil {
		return nil, err
	}
	return NewClient(config.GetAPIBaseURL(), tok), nil
}

type createRequest struct {
	Files       map[string]fileContent `refmt:"files"`
	Description string                 `refmt:"description,omitempty"`
	Public      bool                   `refmt:"public"`
}

type fileContent struct {
	Content string `refmt:"content"`
}

var requestAtlas = atlas.MustBuild(
	atlas.BuildEntry(createRequest{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(fileContent{}).StructMap().Autogenerate().Complete(),
)

/*
	Create a paste holding the given files (name to content).

	The service refuses files with empty content, so we do too, before
	sending anything.

	May return errors of category:

	  - `api.ErrUsage` -- for no files, bad names, or empty content
	  - `api.ErrAuth` -- if the service rejects the token
	  - `api.ErrAPI` -- for any other failure; details carry the service's explanation
	  - `api.ErrCancelled` -- if ctx was cancelled
*/
func (c *Client) Create(ctx context.Context, files map[string]string, public bool, description string) (_ api.RemoteID, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if len(files) == 0 {
		return "", Errorf(api.ErrUsage, "a paste needs at least one file")
	}
	req := createRequest{
		Files:       make(map[string]fileContent, len(files)),
		Description: description,
		Public:      public,
	}
	for name, content := range files {
		if err := api.ValidateLogicalName(name); err != nil {
			return "", err
		}
		if content == "" {
			return "", Errorf(api.ErrUsage, "content can't be empty (file %q)", name)
		}
		req.Files[name] = fileContent{content}
	}
	var body bytes.Buffer
	if err := refmt.NewMarshallerAtlased(json.EncodeOptions{}, &body, requestAtlas).Marshal(&req); err != nil {
		return "", Errorf(api.ErrUsage, "cannot encode request: %s", err)
	}

	var resp map[string]interface{}
	if err := c.do(ctx, "POST", "/gists", &body, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	id, _ := resp["id"].(string)
	remoteID := api.RemoteID(id)
	if err := remoteID.Validate(); err != nil {
		return "", Errorf(api.ErrAPI, "service returned an unusable paste id %q", id)
	}
	return remoteID, nil
}

/*
	Delete a paste.

	May return errors of category:

	  - `api.ErrUsage` -- for an invalid id
	  - `api.ErrAuth` -- if the service rejects the token
	  - `api.ErrAPI` -- for any other failure, including a paste that doesn't exist
	  - `api.ErrCancelled` -- if ctx was cancelled
*/
func (c *Client) Delete(ctx context.Context, id api.RemoteID) (err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	if err := id.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "DELETE", "/gists/"+id.String(), nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, expect int, into *map[string]interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return Errorf(api.ErrUsage, "cannot build request: %s", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Authorization", "token "+c.Token)
	ua := c.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		err = errors.Wrapf(err, "%s %s", method, path)
		if ctx.Err() != nil {
			return Errorf(api.ErrCancelled, "cancelled: %s", err)
		}
		return Errorf(api.ErrAPI, "cannot reach paste service: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		apiErr := parseAPIError(resp)
		cat := api.ErrAPI
		if resp.StatusCode == http.StatusUnauthorized {
			cat = api.ErrAuth
		}
		return ErrorDetailed(cat, apiErr.Error(), apiErr.Details())
	}
	if into == nil {
		return nil
	}
	if err := decode(resp.Body, into); err != nil {
		return Errorf(api.ErrAPI, "cannot parse response to %s %s: %s", method, path, err)
	}
	return nil
}

func decode(r io.Reader, into *map[string]interface{}) error {
	err := refmt.NewUnmarshallerAtlased(json.DecodeOptions{}, r, atlas.MustBuild()).Unmarshal(into)
	return errors.Wrap(err, "decoding json")
}

/*
	The error document the service sends with a failed request.
*/
type APIError struct {
	Status           int
	Message          string
	Errors           []APIErrorItem
	DocumentationURL string
}

type APIErrorItem struct {
	Resource string
	Field    string
	Code     string
	Message  string
}

func (e APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	var items []string
	for _, it := range e.Errors {
		items = append(items, it.String())
	}
	if len(items) > 0 {
		msg += " (" + strings.Join(items, "; ") + ")"
	}
	return msg
}

func (e APIError) Details() map[string]string {
	d := map[string]string{
		"status": fmt.Sprintf("%d", e.Status),
	}
	if e.DocumentationURL != "" {
		d["documentation_url"] = e.DocumentationURL
	}
	for i, it := range e.Errors {
		d[fmt.Sprintf("error.%d", i)] = it.String()
	}
	return d
}

func (it APIErrorItem) String() string {
	if it.Message != "" {
		return it.Message
	}
	var parts []string
	for _, p := range []string{it.Resource, it.Field, it.Code} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Never fails: a body that isn't the usual error document still yields the status.
func parseAPIError(resp *http.Response) APIError {
	apiErr := APIError{Status: resp.StatusCode}
	var doc map[string]interface{}
	if err := decode(resp.Body, &doc); err != nil {
		return apiErr
	}
	apiErr.Message, _ = doc["message"].(string)
	apiErr.DocumentationURL, _ = doc["documentation_url"].(string)
	list, _ := doc["errors"].([]interface{})
	for _, raw := range list {
		switch v := raw.(type) {
		case string:
			apiErr.Errors = append(apiErr.Errors, APIErrorItem{Message: v})
		case map[string]interface{}:
			it := APIErrorItem{}
			it.Resource, _ = v["resource"].(string)
			it.Field, _ = v["field"].(string)
			it.Code, _ = v["code"].(string)
			it.Message, _ = v["message"].(string)
			apiErr.Errors = append(apiErr.Errors, it)
		}
	}
	return apiErr
}
