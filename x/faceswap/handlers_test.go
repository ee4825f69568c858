package faceswap_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	swap_common "github.com/p2p-org/faceswap/x/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filePart struct {
	field   string
	name    string
	content []byte
}

func multipartBody(t *testing.T, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.Nil(t, err)
		_, err = fw.Write(p.content)
		require.Nil(t, err)
	}
	require.Nil(t, mw.Close())
	return body, mw.FormDataContentType()
}

func doSwapRequest(t *testing.T, env *testEnv, parts ...filePart) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, swap_common.SwapPath, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp swap_common.ErrorResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestSwapEndpointServesResult(t *testing.T) {
	env := newTestEnv(t)

	rec := doSwapRequest(t, env,
		filePart{swap_common.SourceImageFormField, "alice.png", testPNG(t, 64, 64)},
		filePart{swap_common.DestImageFormField, "bob.png", testPNG(t, 80, 60)},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp swap_common.SwapResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ResultImage, "/static/output/face_swap_"), resp.ResultImage)

	// the returned reference must be servable right away
	getRec := httptest.NewRecorder()
	env.router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, resp.ResultImage, nil))
	require.Equal(t, http.StatusOK, getRec.Code)
	_, format, err := image.Decode(bytes.NewReader(getRec.Body.Bytes()))
	require.Nil(t, err)
	assert.Equal(t, "png", format)
}

func TestSwapEndpointRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := doSwapRequest(t, env,
		filePart{swap_common.SourceImageFormField, "alice.png", testPNG(t, 64, 64)},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "no file selected")

	rec = doSwapRequest(t, env,
		filePart{swap_common.SourceImageFormField, "alice.gif", testPNG(t, 64, 64)},
		filePart{swap_common.DestImageFormField, "bob.png", testPNG(t, 80, 60)},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "invalid file format")

	rec = doSwapRequest(t, env,
		filePart{swap_common.SourceImageFormField, "alice.png", []byte("not an image")},
		filePart{swap_common.DestImageFormField, "bob.png", testPNG(t, 80, 60)},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "could not decode image")

	assert.Equal(t, 0, env.worker.callCount())
}

func TestSwapEndpointReportsWorkerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.worker.setErr(errors.New("space is down"))

	rec := doSwapRequest(t, env,
		filePart{swap_common.SourceImageFormField, "alice.png", testPNG(t, 64, 64)},
		filePart{swap_common.DestImageFormField, "bob.png", testPNG(t, 80, 60)},
	)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, errorBody(t, rec))
}

func TestIndexEndpointRendersTemplate(t *testing.T) {
	env := newTestEnv(t)
	require.Nil(t, os.MkdirAll(env.cfg.TemplatePath, 0755))
	require.Nil(t, os.WriteFile(
		filepath.Join(env.cfg.TemplatePath, "index.html"),
		[]byte(`<h1>Face Swap</h1>{{if .ResultImage}}<img src="{{.ResultImage}}">{{end}}`),
		0644,
	))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, swap_common.IndexPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Face Swap")
}

func TestCreateProductEndpoint(t *testing.T) {
	env := newTestEnv(t)

	fakeShopify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2023-04/products.json", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"product":{"id":42,"handle":"swapped-tee"}}`))
	}))
	defer fakeShopify.Close()
	env.shopify.BaseURL = fakeShopify.URL

	artifactPath := filepath.Join(env.cfg.OutputPath, "face_swap_test.png")
	require.Nil(t, os.WriteFile(artifactPath, testPNG(t, 16, 16), 0644))

	form := url.Values{
		"shopify_access_token": {"shpat_token"},
		"shop_url":             {"demo.myshopify.com"},
		"image_url":            {"/static/output/face_swap_test.png"},
		"product_title":        {"Swapped Tee"},
		"price":                {"19.99"},
	}
	req := httptest.NewRequest(http.MethodPost, swap_common.CreateProductPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp swap_common.CreateProductResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ProductID)
	assert.Equal(t, "https://demo.myshopify.com/products/swapped-tee", resp.ProductURL)
}

func TestCreateProductEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, swap_common.CreateProductPath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(url.Values{
		"shop_url":      {"demo.myshopify.com"},
		"image_url":     {"/static/output/face_swap_test.png"},
		"product_title": {"Swapped Tee"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "missing form field")

	rec = post(url.Values{
		"shop_url":      {"demo.myshopify.com"},
		"image_url":     {"/static/output/face_swap_test.png"},
		"product_title": {"Swapped Tee"},
		"price":         {"not-a-price"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "price is not a number")
}
