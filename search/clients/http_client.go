package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	Logger "github.com/lvoz2/weblib/utils/log"
	"github.com/pkg/errors"
)

// UserAgent identifies every outbound request this service makes, per the
// etiquette the upstream APIs ask of automated consumers.
const UserAgent = "WebLib/1.0 (https://github.com/lvoz2/weblib)"

// DefaultTimeout bounds search and enrichment calls to third-party APIs. A
// timeout is a recoverable failure, never a crash.
const DefaultTimeout = 5 * time.Second

type HttpClient struct {
	header http.Header

	client *http.Client
}

func NewDefaultHttpClient() *HttpClient {
	return NewHttpClient(DefaultTimeout)
}

func NewHttpClient(timeout time.Duration) *HttpClient {
	header := http.Header{}
	header.Set("User-Agent", UserAgent)
	return &HttpClient{header: header, client: &http.Client{Timeout: timeout}}
}

func (c *HttpClient) Get(ctx context.Context, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.header.Clone()
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if IsNon200HttpResponse(res) {
		MaybeLogNon200HttpError(res)
		res.Body.Close()
		return nil, errors.Errorf("non-200 http code: %d from %s", res.StatusCode, uri)
	}

	return res, nil
}

// GetJSON issues a GET and decodes the JSON response body into out.
func (c *HttpClient) GetJSON(ctx context.Context, uri string, out interface{}) error {
	res, err := c.Get(ctx, uri)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "malformed response body from %s", uri)
	}
	return nil
}

// ContentType probes uri with a metadata-only HEAD request and returns the
// Content-Type the server reports for it.
func (c *HttpClient) ContentType(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return "", err
	}
	req.Header = c.header.Clone()
	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if IsNon200HttpResponse(res) {
		MaybeLogNon200HttpError(res)
		return "", errors.Errorf("non-200 http code: %d from %s", res.StatusCode, uri)
	}

	return res.Header.Get("Content-Type"), nil
}

// Log http response if the error code is not 2XX
func MaybeLogNon200HttpError(res *http.Response) {
	if IsNon200HttpResponse(res) {
		Logger.Log.Errorf("non-200 http code: %d", res.StatusCode)
		LogHttpResponseBody(res)
	}
}

func IsNon200HttpResponse(res *http.Response) bool {
	return res.StatusCode >= 300
}

func LogHttpResponseBody(res *http.Response) {
	body, err := io.ReadAll(res.Body)
	if err == nil {
		Logger.Log.Errorln("response body is: ", string(body))
	}
}
