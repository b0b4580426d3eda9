package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/s/eduPortal/internal/logger"
)

// DefaultMutationTimeout - клиентский таймаут изменяющих запросов.
const DefaultMutationTimeout = 15 * time.Second

type Options struct {
	BaseURL string
	// Таймаут POST/PUT/DELETE. Чтения ограничены только контекстом вызывающего.
	MutationTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *logger.Logger
}

// Client - шлюз к REST-бэкенду портала.
type Client struct {
	rest            *resty.Client
	mutationTimeout time.Duration
	log             *logger.Logger
}

// File - вложение для multipart-запроса.
type File struct {
	Field    string
	FileName string
	Reader   io.Reader
}

// Error - бэкенд ответил не 2xx.
type Error struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *Error) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

func New(opts Options) *Client {
	if opts.MutationTimeout <= 0 {
		opts.MutationTimeout = DefaultMutationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	rc.SetHeader("Accept", "application/json")

	return &Client{
		rest:            rc,
		mutationTimeout: opts.MutationTimeout,
		log:             opts.Logger.With("component", "gateway"),
	}
}

// List запрашивает коллекцию и нормализует обертку ответа.
func (c *Client) List(ctx context.Context, path string, query url.Values, domainKeys ...string) ([]json.RawMessage, error) {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	items := ExtractList(body, domainKeys...)
	if items == nil {
		c.log.Warn("no collection in response, using empty", "path", path)
	}
	return items, nil
}

// Fetch - List + разбор элементов в T. Битые элементы пропускаются с предупреждением.
func Fetch[T any](ctx context.Context, c *Client, path string, query url.Values, domainKeys ...string) ([]T, error) {
	items, err := c.List(ctx, path, query, domainKeys...)
	if err != nil {
		return nil, err
	}
	out, skipped := DecodeList[T](items)
	if skipped > 0 {
		c.log.Warn("skipped malformed items", "path", path, "skipped", skipped)
	}
	return out, nil
}

// Record запрашивает одиночную запись.
func (c *Client) Record(ctx context.Context, path string, query url.Values, domainKeys ...string) (json.RawMessage, error) {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return ExtractRecord(body, domainKeys...), nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	return c.do(req, http.MethodGet, path)
}

// PostForm отправляет форму application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx).SetFormDataFromValues(form)
	return c.do(req, http.MethodPost, path)
}

// PostMultipart отправляет форму multipart/form-data с вложениями.
// Без вложений запрос уходит обычной формой.
func (c *Client) PostMultipart(ctx context.Context, path string, form url.Values, files ...File) ([]byte, error) {
	if len(files) == 0 {
		return c.PostForm(ctx, path, form)
	}
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx).SetFormDataFromValues(form)
	for _, f := range files {
		req.SetFileReader(f.Field, f.FileName, f.Reader)
	}
	return c.do(req, http.MethodPost, path)
}

func (c *Client) PutForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx).SetFormDataFromValues(form)
	return c.do(req, http.MethodPut, path)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	return c.do(req, http.MethodDelete, path)
}

func (c *Client) do(req *resty.Request, method, path string) ([]byte, error) {
	started := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Warn("request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	c.log.Debug("request done", "method", method, "path", path, "status", status, "took", time.Since(started))

	if status < 200 || status >= 300 {
		return nil, &Error{Method: method, Path: path, Status: status, Body: resp.Body()}
	}
	return resp.Body(), nil
}
