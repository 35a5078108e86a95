package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/basflight/bas-console/internal/utils"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Body is a request payload. Implementations return the encoded bytes and the
// content type to send.
type Body interface {
	encode() (io.Reader, string, error)
}

// JSONBody sends Value as application/json.
type JSONBody struct {
	Value any
}

func (b JSONBody) encode() (io.Reader, string, error) {
	data, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

// MultipartBody sends a single file part. The content type, boundary included,
// comes from the multipart writer.
type MultipartBody struct {
	Field    string
	Filename string
	Reader   io.Reader
}

func (b MultipartBody) encode() (io.Reader, string, error) {
	if b.Reader == nil {
		return nil, "", errors.New("multipart body has no reader")
	}
	field := b.Field
	if field == "" {
		field = "file"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, b.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, b.Reader); err != nil {
		return nil, "", fmt.Errorf("copy file body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// Observer is told about every completed request. Route is the unexpanded path
// template so label cardinality stays bounded.
type Observer func(route, method string, status int, elapsed time.Duration, err error)

// Call describes one backend request.
type Call struct {
	Route  string
	Method string
	Path   string
	Params url.Values
	Body   Body
	// Out receives the decoded response: an io.Writer gets the raw body, any other
	// non-nil value is JSON-decoded.
	Out any
}

// Gateway issues requests against the flight-analytics backend and normalizes
// failures into utils.AppError kinds. It never retries.
type Gateway struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
	logger      *slog.Logger
	observer    Observer
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithCredentials attaches a bearer token source.
func WithCredentials(src CredentialSource) GatewayOption {
	return func(g *Gateway) { g.credentials = src }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers a completion hook.
func WithObserver(obs Observer) GatewayOption {
	return func(g *Gateway) { g.observer = obs }
}

// NewGateway constructs a gateway for baseURL. The timeout bounds each request
// end to end; the core adds no other timeout.
func NewGateway(baseURL string, timeout time.Duration, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request is the generic entry point: method and path plus optional query
// parameters, body and decode target.
func (g *Gateway) Request(ctx context.Context, method, path string, params url.Values, body Body, out any) error {
	return g.Do(ctx, Call{Route: path, Method: method, Path: path, Params: params, Body: body, Out: out})
}

// Do executes call. Query parameters are encoded with sorted keys so identical
// logical requests produce identical URLs.
func (g *Gateway) Do(ctx context.Context, call Call) (err error) {
	op := strings.TrimSpace(call.Method + " " + call.Route)
	if g == nil {
		return utils.NewAppError(op, "gateway not initialised", nil)
	}
	if g.baseURL == "" {
		return utils.NewAppError(op, "backend base URL not configured", nil)
	}

	started := time.Now()
	status := 0
	defer func() {
		elapsed := time.Since(started)
		if g.observer != nil {
			g.observer(call.Route, call.Method, status, elapsed, err)
		}
		attrs := []any{
			slog.String("method", call.Method),
			slog.String("route", call.Route),
			slog.Int("status", status),
			slog.Duration("elapsed", elapsed),
		}
		if err != nil {
			g.logger.Debug("backend request failed", append(attrs, slog.Any("error", err))...)
			return
		}
		g.logger.Debug("backend request", attrs...)
	}()

	endpoint := g.resolve(call.Path, call.Params)

	var reader io.Reader
	contentType := ""
	if call.Body != nil {
		reader, contentType, err = call.Body.encode()
		if err != nil {
			return utils.NewAppError(op, "encode request", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, endpoint, reader)
	if err != nil {
		return utils.NewAppError(op, "build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bas-console")

	if g.credentials != nil {
		token, credErr := g.credentials.Token(ctx)
		if credErr != nil {
			return &utils.AppError{Op: op, Msg: "credential unavailable", Kind: utils.KindAuth, Err: credErr}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return utils.NewTransportError(op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return utils.NewServerError(op, resp.StatusCode, errorMessage(resp.Body))
	}

	switch out := call.Out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case io.Writer:
		if _, err := io.Copy(out, resp.Body); err != nil {
			return utils.NewTransportError(op, err)
		}
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return utils.NewAppError(op, "decode response", err)
		}
		return nil
	}
}

func (g *Gateway) resolve(p string, params url.Values) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(g.baseURL)
	if err != nil {
		endpoint := g.baseURL + cleaned
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		return endpoint
	}
	// Path holds the decoded form; RawPath keeps escaped segments such as
	// Cyrillic region names intact.
	rawJoined := path.Join(u.EscapedPath(), cleaned)
	if strings.HasSuffix(cleaned, "/") && cleaned != "/" {
		rawJoined += "/"
	}
	decoded, err := url.PathUnescape(rawJoined)
	if err != nil {
		decoded = rawJoined
	}
	u.Path = decoded
	u.RawPath = rawJoined
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// errorMessage extracts a human message from a failed response: FastAPI's
// "detail", a "message" field, or the trimmed body text.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if len(envelope.Detail) > 0 {
			var detail string
			if json.Unmarshal(envelope.Detail, &detail) == nil && detail != "" {
				return detail
			}
			return string(envelope.Detail)
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return strings.TrimSpace(string(data))
}
