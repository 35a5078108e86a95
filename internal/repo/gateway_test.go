package repo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/basflight/bas-console/internal/utils"
)

func newTestGateway(rt roundTripFunc, opts ...GatewayOption) *Gateway {
	opts = append([]GatewayOption{WithHTTPClient(newTestClient(rt)), WithLogger(utils.DiscardLogger())}, opts...)
	return NewGateway("https://backend.example", time.Second, opts...)
}

func TestRequestEncodesParamsDeterministically(t *testing.T) {
	var seen []string
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.URL.String())
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	ctx := context.Background()
	a := url.Values{}
	a.Set("start_date", "2024-09-01")
	a.Set("limit", "20")
	a.Set("end_date", "2024-09-07")
	b := url.Values{}
	b.Set("end_date", "2024-09-07")
	b.Set("start_date", "2024-09-01")
	b.Set("limit", "20")

	if err := gw.Request(ctx, http.MethodGet, "/regions/rating", a, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := gw.Request(ctx, http.MethodGet, "/regions/rating", b, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://backend.example/regions/rating?end_date=2024-09-07&limit=20&start_date=2024-09-01"
	if len(seen) != 2 || seen[0] != want || seen[1] != want {
		t.Fatalf("unexpected wire requests: %v", seen)
	}
}

func TestRequestAttachesBearerToken(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if got := req.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type %q", got)
		}
		return jsonResponse(http.StatusOK, `{"status":"ok"}`), nil
	}, WithCredentials(StaticToken("s3cret")))

	var out struct{ Status string }
	if err := gw.Request(context.Background(), http.MethodPost, "/reports/generate", nil, JSONBody{Value: map[string]string{"format": "json"}}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("unexpected decoded body: %+v", out)
	}
}

func TestRequestOmitsAuthorizationWithoutToken(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		if _, ok := req.Header["Authorization"]; ok {
			t.Fatalf("authorization header should be absent")
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	}, WithCredentials(FileToken(filepath.Join(t.TempDir(), "missing-token"))))

	if err := gw.Request(context.Background(), http.MethodGet, "/health", nil, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnauthorizedReturnsAuthError(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"detail":"Not authenticated"}`), nil
	})

	err := gw.Request(context.Background(), http.MethodGet, "/flights/statistics", nil, nil, nil)
	if !utils.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if utils.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", utils.StatusOf(err))
	}
	if !strings.Contains(err.Error(), "Not authenticated") {
		t.Fatalf("expected backend detail in error, got %v", err)
	}
}

func TestServerErrorCarriesStatusAndMessage(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"detail":"Файл должен быть в формате Excel"}`), nil
	})

	err := gw.Request(context.Background(), http.MethodPost, "/flights/upload/excel", nil, nil, nil)
	if !utils.IsKind(err, utils.KindServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if utils.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", utils.StatusOf(err))
	}
	if !strings.Contains(err.Error(), "Excel") {
		t.Fatalf("expected message in error, got %v", err)
	}
}

func TestServerErrorFallsBackToBodyText(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("upstream down\n")), Header: make(http.Header)}, nil
	})

	err := gw.Request(context.Background(), http.MethodGet, "/flights", nil, nil, nil)
	if !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("expected body text in error, got %v", err)
	}
}

func TestTransportFailureIsNotRetried(t *testing.T) {
	calls := 0
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})

	err := gw.Request(context.Background(), http.MethodGet, "/flights", nil, nil, nil)
	if !utils.IsKind(err, utils.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
}

func TestObserverSeesRouteAndStatus(t *testing.T) {
	var mu sync.Mutex
	var routes []string
	var statuses []int
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"detail":"Регион не найден"}`), nil
	}, WithObserver(func(route, method string, status int, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		routes = append(routes, route)
		statuses = append(statuses, status)
		if err == nil {
			t.Errorf("observer should receive the error")
		}
	}))

	err := gw.Do(context.Background(), Call{Route: "/regions/%s/statistics", Method: http.MethodGet, Path: "/regions/x/statistics"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(routes) != 1 || routes[0] != "/regions/%s/statistics" || statuses[0] != http.StatusNotFound {
		t.Fatalf("unexpected observations: %v %v", routes, statuses)
	}
}

func TestMultipartBodyLetsWriterSetContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		part, err := reader.NextPart()
		if err != nil || part.FormName() != "file" || part.FileName() != "flights.xlsx" {
			http.Error(w, "bad part", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		if string(data) != "payload" {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed":3,"status":"success"}`))
	}))
	defer srv.Close()

	gw := NewGateway(srv.URL, time.Second, WithLogger(utils.DiscardLogger()))
	var out struct {
		Processed int `json:"processed"`
	}
	body := MultipartBody{Field: "file", Filename: "flights.xlsx", Reader: strings.NewReader("payload")}
	if err := gw.Request(context.Background(), http.MethodPost, "/flights/upload/excel", nil, body, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Processed != 3 {
		t.Fatalf("unexpected processed count %d", out.Processed)
	}
}

func TestRequestStreamsIntoWriter(t *testing.T) {
	gw := newTestGateway(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("PK\x03\x04")), Header: make(http.Header)}, nil
	})

	var buf bytes.Buffer
	if err := gw.Request(context.Background(), http.MethodGet, "/reports/download/report.xlsx", nil, nil, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "PK\x03\x04" {
		t.Fatalf("unexpected body %q", buf.String())
	}
}

func TestGatewayWithoutBaseURL(t *testing.T) {
	gw := NewGateway("", time.Second)
	if err := gw.Request(context.Background(), http.MethodGet, "/flights", nil, nil, nil); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestFileTokenReadsCurrentValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	src := FileToken(path)

	token, err := src.Token(context.Background())
	if err != nil || token != "" {
		t.Fatalf("missing file should mean no token, got %q, %v", token, err)
	}
	if err := os.WriteFile(path, []byte("abc\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	token, err = src.Token(context.Background())
	if err != nil || token != "abc" {
		t.Fatalf("unexpected token %q, %v", token, err)
	}
}

func TestChainCredentialsPicksFirstNonEmpty(t *testing.T) {
	t.Setenv("BAS_TEST_TOKEN", "from-env")
	chain := ChainCredentials{StaticToken(""), EnvToken("BAS_TEST_TOKEN"), StaticToken("late")}
	token, err := chain.Token(context.Background())
	if err != nil || token != "from-env" {
		t.Fatalf("unexpected token %q, %v", token, err)
	}
}
