package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/apptest/internal/platform/logger"
)

// HandlerPresenter runs requests through an http.Handler in-process. The
// action becomes the path under Prefix, Params the query string and Post
// a form body (multipart when files are attached). The logged in
// identity travels in the request context and, when it carries a token,
// as a bearer Authorization header.
type HandlerPresenter struct {
	Base

	// Prefix is the path the handler's routes live under.
	Prefix  string
	handler http.Handler
}

var _ Presenter = (*HandlerPresenter)(nil)

// NewHandlerPresenter creates a HandlerPresenter over h.
func NewHandlerPresenter(prefix string, h http.Handler) *HandlerPresenter {
	return &HandlerPresenter{Prefix: prefix, handler: h}
}

// NewRouterPresenter creates a HandlerPresenter over a fresh chi router
// configured by routes.
func NewRouterPresenter(prefix string, routes func(r chi.Router)) *HandlerPresenter {
	r := chi.NewRouter()
	routes(r)
	return NewHandlerPresenter(prefix, r)
}

// Run implements Presenter.
func (p *HandlerPresenter) Run(ctx context.Context, req *Request) (Response, error) {
	if redirect := p.canonicalRedirect(p.Prefix, req); redirect != nil {
		return redirect, nil
	}

	httpReq, err := p.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := httptest.NewRecorder()
	p.handler.ServeHTTP(rec, httpReq)

	logger.FromContext(ctx).Debug("presenter request handled",
		"method", httpReq.Method,
		"path", httpReq.URL.Path,
		"status", rec.Code)

	return classify(rec.Result())
}

func (p *HandlerPresenter) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = MethodGet
	}

	target := &url.URL{Path: ActionPath(p.Prefix, req.Action())}
	query := url.Values{}
	for k, v := range req.Params {
		if k == ActionKey {
			continue
		}
		addValues(query, k, v)
	}
	target.RawQuery = query.Encode()

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(req.Files) > 0:
		buf, ct, err := multipartBody(req.Post, req.Files)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case len(req.Post) > 0 || method == MethodPost:
		form := url.Values{}
		for k, v := range req.Post {
			addValues(form, k, v)
		}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	if id := p.User().Identity(); id != nil {
		ctx = WithIdentity(ctx, id)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if id := p.User().Identity(); id != nil && id.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+id.Token)
	}
	return httpReq, nil
}

func addValues(values url.Values, key string, v any) {
	switch vv := v.(type) {
	case nil:
		values.Add(key, "")
	case string:
		values.Add(key, vv)
	case []string:
		for _, s := range vv {
			values.Add(key, s)
		}
	case []any:
		for _, item := range vv {
			values.Add(key, fmt.Sprint(item))
		}
	default:
		values.Add(key, fmt.Sprint(vv))
	}
}

func multipartBody(post map[string]any, files map[string]FileUpload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := url.Values{}
	for k, v := range post {
		addValues(fields, k, v)
	}
	for _, k := range sortedKeys(fields) {
		for _, v := range fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("write form field %s: %w", k, err)
			}
		}
	}

	names := make([]string, 0, len(files))
	for k := range files {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, field := range names {
		f := files[field]
		part, err := w.CreatePart(fileHeader(field, f))
		if err != nil {
			return nil, "", fmt.Errorf("create file part %s: %w", field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("write file part %s: %w", field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func fileHeader(field string, f FileUpload) textproto.MIMEHeader {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("form-data", map[string]string{"name": field, "filename": f.Name})
	return textproto.MIMEHeader{
		"Content-Disposition": {disposition},
		"Content-Type":        {ct},
	}
}

func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// classify turns a recorded HTTP response into an outcome variant.
func classify(res *http.Response) (Response, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read recorded response: %w", err)
	}

	if loc := res.Header.Get("Location"); loc != "" && res.StatusCode >= 300 && res.StatusCode < 400 {
		return &RedirectResponse{URL: loc, Code: res.StatusCode}, nil
	}
	if res.StatusCode >= 400 {
		return nil, &HTTPError{Status: res.StatusCode, Body: string(body)}
	}

	ct := res.Header.Get("Content-Type")
	if isJSON(ct) {
		return &JSONResponse{Payload: json.RawMessage(body), ContentType: ct}, nil
	}
	return &TextResponse{Source: string(body)}, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
