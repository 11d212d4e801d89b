package handlers

// Strategy names a shortening strategy selectable per request.
type Strategy string

// Available strategies.
const (
	StrategyToken Strategy = "token"
	StrategyHash  Strategy = "hash"
)

// ShortenBody is the JSON body for creating a short link.
type ShortenBody struct {
	URL      string   `doc:"The absolute http(s) URL to shorten"                 example:"https://example.com/a/b?c=1" json:"url"`
	Strategy Strategy `doc:"token mints a new code, hash reuses equivalent URLs" example:"hash"                        json:"strategy,omitempty"`
}

// ShortenRequest carries a JSON ShortenBody, decoded by the handler.
type ShortenRequest struct {
	RawBody []byte
}

// ShortenResponse is the response for a successfully created short link.
type ShortenResponse struct {
	Location string `doc:"The short URL" header:"Location"`
	Body     struct {
		ShortCode string `doc:"The short code"     example:"aZ3kQ1x"                      json:"short_code"`
		ShortURL  string `doc:"The full short URL" example:"http://localhost:8888/aZ3kQ1x" json:"short_url"`
		LongURL   string `doc:"The long URL"       example:"https://example.com/a/b?c=1"  json:"long_url"`
	}
}

// RedirectRequest is the request for resolving a short code.
type RedirectRequest struct {
	Code string `doc:"The short code" example:"aZ3kQ1x" path:"code"`
}

// RedirectResponse redirects the client to the long URL.
type RedirectResponse struct {
	Status       int
	Location     string `header:"Location"`
	CacheControl string `header:"Cache-Control"`
}

// QRRequest carries the style fields and optional logo as multipart form data.
// An empty body renders the default style.
type QRRequest struct {
	Code        string `doc:"The short code" example:"aZ3kQ1x" path:"code"`
	ContentType string `header:"Content-Type"`
	RawBody     []byte
}

// QRResponse is a rendered PNG.
type QRResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}
