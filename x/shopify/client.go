package shopify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	swap_common "github.com/p2p-org/faceswap/x/common"
)

// Client talks to the Shopify Admin REST API. Requests authenticate with
// the per-store access token when one is given, falling back to the
// configured private app key pair.
type Client struct {
	apiKey     string
	apiSecret  string
	apiVersion string
	client     http.Client

	// BaseURL overrides the https://{shop} endpoint when set.
	BaseURL string
}

func NewClient(cfg *swap_common.SwapServiceConfig) *Client {
	return &Client{
		apiKey:     cfg.ShopifyAPIKey,
		apiSecret:  cfg.ShopifyAPISecret,
		apiVersion: cfg.ShopifyAPIVersion,
		client:     http.Client{Timeout: time.Second * 15},
	}
}

type CreateProductParams struct {
	AccessToken  string
	ShopURL      string
	ImagePath    string
	ProductTitle string
	Price        string
}

type productImage struct {
	Filename   string `json:"filename"`
	Attachment string `json:"attachment"`
}

type productVariant struct {
	Price string `json:"price"`
}

type productPayload struct {
	Title    string           `json:"title"`
	Variants []productVariant `json:"variants"`
	Images   []productImage   `json:"images"`
}

type createProductRequest struct {
	Product productPayload `json:"product"`
}

type createProductResponse struct {
	Product struct {
		ID     int64  `json:"id"`
		Handle string `json:"handle"`
	} `json:"product"`
}

// CreateProduct publishes a single variant product with the swap artifact
// attached as its image. The image goes inline as base64, Shopify hosts it
// from there.
func (c *Client) CreateProduct(ctx context.Context, params CreateProductParams) (*swap_common.CreateProductResponse, error) {
	imgBytes, err := os.ReadFile(params.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("could not read product image, error: %+v", err)
	}

	payload := createProductRequest{Product: productPayload{
		Title:    params.ProductTitle,
		Variants: []productVariant{{Price: params.Price}},
		Images: []productImage{{
			Filename:   filepath.Base(params.ImagePath),
			Attachment: base64.StdEncoding.EncodeToString(imgBytes),
		}},
	}}
	ba, err := json.Marshal(&payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal product payload, error: %+v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.productsEndpoint(params.ShopURL), bytes.NewReader(ba))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if params.AccessToken != "" {
		req.Header.Set("X-Shopify-Access-Token", params.AccessToken)
	} else {
		req.SetBasicAuth(c.apiKey, c.apiSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create product failed, status code: %d, body: %s", resp.StatusCode, body)
	}

	var repl createProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&repl); err != nil {
		return nil, fmt.Errorf("could not unmarshal product response, error: %+v", err)
	}

	return &swap_common.CreateProductResponse{
		ProductID:  repl.Product.ID,
		ProductURL: fmt.Sprintf("https://%s/products/%s", params.ShopURL, repl.Product.Handle),
	}, nil
}

func (c *Client) productsEndpoint(shopURL string) string {
	if c.BaseURL != "" {
		return fmt.Sprintf("%s/admin/api/%s/products.json", c.BaseURL, c.apiVersion)
	}
	return fmt.Sprintf("https://%s/admin/api/%s/products.json", shopURL, c.apiVersion)
}
