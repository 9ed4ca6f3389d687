// Package appwrite talks to an Appwrite backend through the official Go SDK.
package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/appwrite/sdk-for-go/appwrite"
	awclient "github.com/appwrite/sdk-for-go/client"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/config"
)

// chunkSize is the largest single upload request the backend accepts.
const chunkSize = 5 * 1024 * 1024

const responseFormat = "1.8.0"

// Backend builds SDK clients for one project.
type Backend struct {
	cfg  config.BackendConfig
	http *http.Client
}

func New(cfg config.BackendConfig, httpClient *http.Client) *Backend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{cfg: cfg, http: httpClient}
}

func (b *Backend) Client(creds backend.Credentials) (*backend.Client, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if creds.Kind() == backend.KindNone {
		return nil, fmt.Errorf("appwrite: credentials required")
	}
	c := b.newClient(creds)
	return &backend.Client{Credentials: creds, Documents: c, Storage: c, Accounts: c}, nil
}

// Ping checks that the configured database is reachable with the API key.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	c := b.newClient(backend.Admin())
	return c.call(ctx, func(conn awclient.Client) error {
		_, err := sdk.NewDatabases(conn).Get(b.cfg.DatabaseID)
		return err
	})
}

type client struct {
	backend *Backend
	creds   backend.Credentials
	base    awclient.Client
}

func (b *Backend) newClient(creds backend.Credentials) *client {
	options := []awclient.ClientOption{
		sdk.WithEndpoint(b.cfg.Endpoint),
		sdk.WithProject(b.cfg.ProjectID),
		sdk.WithChunkSize(chunkSize),
	}
	if creds.UsesAPIKey() {
		options = append(options, sdk.WithKey(b.cfg.APIKey))
	}
	if creds.Kind() == backend.KindSession && creds.Token() != "" {
		options = append(options, sdk.WithSession(creds.Token()))
	}
	return &client{backend: b, creds: creds, base: sdk.NewClient(options...)}
}

// call runs fn against an SDK client whose requests are bound to ctx. SDK
// methods take no context of their own.
func (c *client) call(ctx context.Context, fn func(awclient.Client) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := c.base
	httpClient := *c.backend.http
	httpClient.Transport = contextTransport{ctx: ctx, base: httpClient.Transport}
	conn.Client = &httpClient

	defer func() {
		// The SDK type-asserts response shapes and panics on surprises.
		if r := recover(); r != nil {
			err = fmt.Errorf("appwrite: unexpected response: %v", r)
		}
	}()
	return translateError(fn(conn))
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req.WithContext(t.ctx))
}

// decoder is implemented by the SDK's top-level response models.
type decoder interface {
	Decode(value interface{}) error
}

func decodeModel(model decoder, out any) error {
	if err := model.Decode(out); err != nil {
		return fmt.Errorf("appwrite: decode response: %w", err)
	}
	return nil
}

// stream fetches a file endpoint and hands the body back open. The SDK
// buffers whole files into memory, so byte endpoints go through net/http.
func (c *client) stream(ctx context.Context, path string) (*backend.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.backend.cfg.Endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range c.base.Headers {
		req.Header.Set(key, value)
	}
	resp, err := c.backend.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("appwrite GET %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return &backend.Blob{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var sdkErr *awclient.AppwriteError
	if errors.As(err, &sdkErr) {
		return newAPIError(sdkErr.GetStatusCode(), []byte(sdkErr.GetResponse()))
	}
	return fmt.Errorf("appwrite: %w", err)
}

func newAPIError(status int, raw []byte) error {
	var payload apiError
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(status)
		}
		return backend.NewError(status, "", message)
	}
	if payload.Code >= 400 && payload.Code <= 599 {
		status = payload.Code
	}
	return backend.NewError(status, payload.Type, payload.Message)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
