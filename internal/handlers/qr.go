package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortqr/internal/qr"
	"github.com/serroba/shortqr/internal/shortener"
	"go.uber.org/zap"
)

// QR targets.
const (
	QRTargetShort = "short"
	QRTargetLong  = "long"
)

const (
	// MaxQRBodyBytes caps the multipart body, logo included.
	MaxQRBodyBytes = 6 << 20
	logoField      = "logo"
)

// Renderer renders QR code PNGs.
type Renderer interface {
	Render(ctx context.Context, req qr.Request) ([]byte, error)
}

// QRHandler renders styled QR codes for existing short links.
type QRHandler struct {
	store          shortener.Repository
	renderer       Renderer
	baseURL        string
	target         string
	resolveTimeout time.Duration
	logger         *zap.Logger
}

// NewQRHandler creates a QR handler. target selects whether the symbol encodes
// the short URL (QRTargetShort) or the stored long URL (QRTargetLong).
func NewQRHandler(
	store shortener.Repository,
	renderer Renderer,
	baseURL string,
	target string,
	logger *zap.Logger,
) *QRHandler {
	if target != QRTargetLong {
		target = QRTargetShort
	}

	return &QRHandler{
		store:          store,
		renderer:       renderer,
		baseURL:        baseURL,
		target:         target,
		resolveTimeout: DefaultResolveTimeout,
		logger:         logger,
	}
}

func (h *QRHandler) RenderQR(ctx context.Context, req *QRRequest) (*QRResponse, error) {
	code := shortener.Code(req.Code)
	if !code.Valid() {
		return nil, huma.Error400BadRequest(shortener.ErrInvalidCode.Error())
	}

	form, err := parseForm(req.ContentType, req.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	defer func() { _ = form.RemoveAll() }()

	logo, err := readLogo(form)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	style, err := qr.ParseStyle(formValue(form), logo != nil)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.resolveTimeout)
	defer cancel()

	link, err := h.store.GetByCode(lookupCtx, code)
	if err != nil {
		return nil, toHTTPError(h.logger, err, zap.String("code", req.Code))
	}

	target := fmt.Sprintf("%s/%s", h.baseURL, link.Code)
	if h.target == QRTargetLong {
		target = link.LongURL
	}

	png, err := h.renderer.Render(ctx, qr.Request{
		TargetURL: target,
		Style:     style,
		Logo:      logo,
	})
	if err != nil {
		return nil, toHTTPError(h.logger, err,
			zap.String("code", req.Code),
			zap.Int("url_length", len(target)),
			zap.Int("logo_bytes", len(logo)),
		)
	}

	return &QRResponse{
		ContentType:  "image/png",
		CacheControl: "private, max-age=300",
		Body:         png,
	}, nil
}

// parseForm reads a multipart/form-data body. An empty body is an empty form.
func parseForm(contentType string, body []byte) (*multipart.Form, error) {
	if len(body) == 0 {
		return &multipart.Form{}, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, fmt.Errorf("%w: body must be multipart/form-data", qr.ErrInvalidStyle)
	}

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(MaxQRBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed multipart body", qr.ErrInvalidStyle)
	}

	return form, nil
}

func formValue(form *multipart.Form) func(string) string {
	return func(name string) string {
		if form.Value == nil {
			return ""
		}

		if v := form.Value[name]; len(v) > 0 {
			return v[0]
		}

		return ""
	}
}

func readLogo(form *multipart.Form) ([]byte, error) {
	if form.File == nil || len(form.File[logoField]) == 0 {
		return nil, nil
	}

	header := form.File[logoField][0]

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read logo", qr.ErrInvalidStyle)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxQRBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read logo", qr.ErrInvalidStyle)
	}

	// Browsers send an empty part when no file is chosen.
	if len(data) == 0 {
		return nil, nil
	}

	return data, nil
}
