package handlers

import (
	"net/http"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the short link and QR routes.
func RegisterRoutes(api huma.API, urlHandler *URLHandler, qrHandler *QRHandler) {
	registry := api.OpenAPI().Components.Schemas

	huma.Register(api, huma.Operation{
		OperationID:   "create-short-url",
		Method:        http.MethodPost,
		Path:          "/shorten",
		Summary:       "Create short URL",
		Description:   "Creates a short link using the specified strategy (hash or token).",
		Tags:          []string{"URLs"},
		DefaultStatus: http.StatusCreated,
		RequestBody: &huma.RequestBody{
			Content: map[string]*huma.MediaType{
				"application/json": {Schema: registry.Schema(reflect.TypeFor[ShortenBody](), true, "ShortenBody")},
			},
		},
	}, urlHandler.CreateShortURL)

	huma.Register(api, huma.Operation{
		OperationID:   "redirect",
		Method:        http.MethodGet,
		Path:          "/{code}",
		Summary:       "Redirect to long URL",
		Description:   "Redirects to the long URL associated with the short code.",
		Tags:          []string{"URLs"},
		DefaultStatus: http.StatusFound,
	}, urlHandler.RedirectToURL)

	huma.Register(api, huma.Operation{
		OperationID:  "render-qr",
		Method:       http.MethodPost,
		Path:         "/{code}/qr",
		Summary:      "Render QR code",
		Description:  "Renders a styled PNG QR code for the short link. Accepts multipart form fields fg_color, bg_color, gradient_start, gradient_end, border_radius, logo_size, logo_radius and an optional logo file. An empty body renders the default style.",
		Tags:         []string{"QR"},
		MaxBodyBytes: MaxQRBodyBytes,
		RequestBody: &huma.RequestBody{
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "PNG image",
				Content: map[string]*huma.MediaType{
					"image/png": {},
				},
			},
		},
	}, qrHandler.RenderQR)
}
