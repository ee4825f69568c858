package faceswap

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"
	swap_common "github.com/p2p-org/faceswap/x/common"
	"github.com/p2p-org/faceswap/x/imgnormalizer"
	"github.com/p2p-org/faceswap/x/shopify"
	log "github.com/sirupsen/logrus"
)

const maxUploadBytes = 32 << 20

// RegisterRoutes attaches all handlers to the router, including the static
// file server that exposes the output area.
func (s *SwapService) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(swap_common.SwapPath, s.SwapHandler).Methods(http.MethodPost)
	router.HandleFunc(swap_common.CreateProductPath, s.CreateProductHandler).Methods(http.MethodPost)
	router.HandleFunc(swap_common.IndexPath, s.IndexHandler).Methods(http.MethodGet)
	router.PathPrefix(swap_common.StaticPrefix).Handler(
		http.StripPrefix(swap_common.StaticPrefix, http.FileServer(http.Dir(s.cfg.StaticPath))))
}

func (s *SwapService) SwapHandler(w http.ResponseWriter, r *http.Request) {
	s.countRequest(swap_common.PrometheusValueReceived)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.failSwap(w, http.StatusBadRequest, fmt.Errorf("%w: could not parse multipart form: %v", ErrValidation, err))
		return
	}

	source, err := readUpload(r, swap_common.SourceImageFormField)
	if err != nil {
		s.failSwap(w, statusForError(err), err)
		return
	}
	dest, err := readUpload(r, swap_common.DestImageFormField)
	if err != nil {
		s.failSwap(w, statusForError(err), err)
		return
	}

	outcome, err := s.Swap(r.Context(), source, dest)
	if err != nil {
		s.failSwap(w, statusForError(err), err)
		return
	}

	s.countRequest(swap_common.PrometheusValueCompleted)
	s.respondJSON(w, http.StatusOK, swap_common.SwapResponse{ResultImage: s.ResultURL(outcome.ResultPath)})
}

func (s *SwapService) IndexHandler(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFiles(filepath.Join(s.cfg.TemplatePath, "index.html"))
	if err != nil {
		log.Errorf("could not parse index template: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, map[string]interface{}{"ResultImage": nil}); err != nil {
		log.Errorf("could not render index template: %v", err)
	}
}

func (s *SwapService) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("%w: could not parse form: %v", ErrValidation, err))
		return
	}

	params := shopify.CreateProductParams{
		AccessToken:  r.FormValue("shopify_access_token"),
		ShopURL:      r.FormValue("shop_url"),
		ProductTitle: r.FormValue("product_title"),
		Price:        r.FormValue("price"),
	}
	imageURL := r.FormValue("image_url")

	for field, value := range map[string]string{
		"shop_url":      params.ShopURL,
		"image_url":     imageURL,
		"product_title": params.ProductTitle,
		"price":         params.Price,
	} {
		if value == "" {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("%w: missing form field %s", ErrValidation, field))
			return
		}
	}
	if _, err := strconv.ParseFloat(params.Price, 64); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("%w: price is not a number", ErrValidation))
		return
	}

	imagePath, err := s.artifactPathFromURL(imageURL)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	params.ImagePath = imagePath

	resp, err := s.shopifyClient.CreateProduct(r.Context(), params)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// artifactPathFromURL maps a public artifact reference back to the file it
// is served from. Only the artifact name is taken from the URL, the file
// always resolves inside the output area.
func (s *SwapService) artifactPathFromURL(imageURL string) (string, error) {
	name := path.Base(imageURL)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: image_url does not reference an artifact", ErrValidation)
	}
	return filepath.Join(s.cfg.OutputPath, name), nil
}

func readUpload(r *http.Request, field string) (swap_common.Upload, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return swap_common.Upload{}, fmt.Errorf("%w: no file selected for %s", ErrValidation, field)
	}
	defer file.Close()

	ba, err := io.ReadAll(file)
	if err != nil {
		return swap_common.Upload{}, fmt.Errorf("could not read %s upload, error: %+v", field, err)
	}

	return swap_common.Upload{Filename: header.Filename, Content: ba}, nil
}

func statusForError(err error) int {
	if errors.Is(err, ErrValidation) || errors.Is(err, imgnormalizer.ErrDecode) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *SwapService) failSwap(w http.ResponseWriter, status int, err error) {
	s.countRequest(swap_common.PrometheusValueFailed)
	s.respondError(w, status, err)
}

func (s *SwapService) respondError(w http.ResponseWriter, status int, err error) {
	log.Errorf("request failed with status %d: %v", status, err)
	s.respondJSON(w, status, swap_common.ErrorResponse{Error: err.Error()})
}

func (s *SwapService) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	ba, err := json.Marshal(body)
	if err != nil {
		log.Errorf("could not marshal response, error: %+v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(ba); err != nil {
		log.Errorf("could not write response, error: %+v", err)
	}
}
