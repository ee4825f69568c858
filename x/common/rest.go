package swap_common

const (
	IndexPath         = "/"
	SwapPath          = "/swap"
	CreateProductPath = "/create-shopify-product"
	StaticPrefix      = "/static/"
)

const (
	SourceImageFormField = "source_image"
	DestImageFormField   = "dest_image"
)

type SwapResponse struct {
	ResultImage string `json:"result_image"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateProductResponse struct {
	ProductID  int64  `json:"product_id"`
	ProductURL string `json:"product_url"`
}
