package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newShopPresenter() *app.HandlerPresenter {
	return app.NewRouterPresenter("/shop", func(r chi.Router) {
		r.Get("/shop", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintf(w, "<h1>Shop %s</h1>", r.URL.Query().Get("page"))
		})
		r.Get("/shop/whoami", func(w http.ResponseWriter, r *http.Request) {
			id, _ := app.IdentityFromContext(r.Context())
			user := ""
			if id != nil {
				user = id.ID
			}
			writeJSON(w, map[string]string{
				"user":          user,
				"authorization": r.Header.Get("Authorization"),
			})
		})
		r.Post("/shop/order", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if r.PostForm.Get("qty") == "" {
				http.Error(w, "qty required", http.StatusUnprocessableEntity)
				return
			}
			http.Redirect(w, r, "/shop/thanks", http.StatusSeeOther)
		})
		r.Post("/shop/upload", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f, header, err := r.FormFile("image")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer f.Close()
			content, _ := io.ReadAll(f)
			writeJSON(w, map[string]string{
				"title":    r.FormValue("title"),
				"filename": header.Filename,
				"content":  string(content),
			})
		})
	})
}

func TestHandlerPresenter_Text(t *testing.T) {
	p := newShopPresenter()

	res, err := p.Run(context.Background(), app.NewRequest("Shop", app.MethodGet, map[string]any{"page": 2}, nil, nil))
	require.NoError(t, err)

	text, ok := res.(*app.TextResponse)
	require.True(t, ok, "expected text response, got %T", res)
	body, err := text.Body()
	require.NoError(t, err)
	assert.Equal(t, "<h1>Shop 2</h1>", body)
}

func TestHandlerPresenter_IdentityAndBearer(t *testing.T) {
	p := newShopPresenter()
	p.User().Login(&app.Identity{ID: "42", Token: "tok"})

	res, err := p.Run(context.Background(), app.NewRequest("Shop", app.MethodGet, map[string]any{"action": "whoami"}, nil, nil))
	require.NoError(t, err)

	jr, ok := res.(*app.JSONResponse)
	require.True(t, ok, "expected json response, got %T", res)
	var out map[string]string
	require.NoError(t, jr.Decode(&out))
	assert.Equal(t, "42", out["user"])
	assert.Equal(t, "Bearer tok", out["authorization"])
}

func TestHandlerPresenter_FormPostRedirects(t *testing.T) {
	p := newShopPresenter()

	res, err := p.Run(context.Background(), app.NewRequest("Shop", app.MethodPost,
		map[string]any{"action": "order"}, map[string]any{"qty": 3}, nil))
	require.NoError(t, err)

	redirect, ok := res.(*app.RedirectResponse)
	require.True(t, ok, "expected redirect, got %T", res)
	assert.Equal(t, "/shop/thanks", redirect.URL)
	assert.Equal(t, http.StatusSeeOther, redirect.Code)
}

func TestHandlerPresenter_ErrorStatus(t *testing.T) {
	p := newShopPresenter()

	_, err := p.Run(context.Background(), app.NewRequest("Shop", app.MethodPost,
		map[string]any{"action": "order"}, nil, nil))
	var httpErr *app.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.Status)
	assert.Contains(t, httpErr.Error(), "qty required")

	_, err = p.Run(context.Background(), app.NewRequest("Shop", app.MethodGet,
		map[string]any{"action": "missing"}, nil, nil))
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestHandlerPresenter_Multipart(t *testing.T) {
	p := newShopPresenter()

	files := map[string]app.FileUpload{
		"image": {Name: "cat.png", ContentType: "image/png", Content: []byte("meow")},
	}
	res, err := p.Run(context.Background(), app.NewRequest("Shop", app.MethodPost,
		map[string]any{"action": "upload"}, map[string]any{"title": "Cat"}, files))
	require.NoError(t, err)

	jr, ok := res.(*app.JSONResponse)
	require.True(t, ok, "expected json response, got %T", res)
	var out map[string]string
	require.NoError(t, jr.Decode(&out))
	assert.Equal(t, map[string]string{"title": "Cat", "filename": "cat.png", "content": "meow"}, out)
}

func TestHandlerPresenter_Canonicalize(t *testing.T) {
	p := app.NewRouterPresenter("/shop", func(r chi.Router) {
		r.Post("/shop/show-detail", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "posted")
		})
	})
	ctx := context.Background()

	res, err := p.Run(ctx, app.NewRequest("Shop", app.MethodGet,
		map[string]any{"action": "showDetail"}, nil, nil))
	require.NoError(t, err)
	require.IsType(t, &app.RedirectResponse{}, res)
	assert.Equal(t, "/shop/show-detail", res.(*app.RedirectResponse).URL)

	// POST requests are never canonicalized.
	res, err = p.Run(ctx, app.NewRequest("Shop", app.MethodPost,
		map[string]any{"action": "showDetail"}, nil, nil))
	require.NoError(t, err)
	body, err := res.(*app.TextResponse).Body()
	require.NoError(t, err)
	assert.Equal(t, "posted", body)

	p.SetAutoCanonicalize(false)
	_, err = p.Run(ctx, app.NewRequest("Shop", app.MethodGet,
		map[string]any{"action": "showDetail"}, nil, nil))
	var httpErr *app.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusMethodNotAllowed, httpErr.Status)
}
