package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortqr/internal/qr"
	"github.com/serroba/shortqr/internal/shortener"
	"go.uber.org/zap"
)

// toHTTPError maps domain errors to huma errors. Server-side failures are
// logged with fields; their messages never reach the client.
func toHTTPError(logger *zap.Logger, err error, fields ...zap.Field) error {
	switch {
	case errors.Is(err, shortener.ErrInvalidURL),
		errors.Is(err, shortener.ErrInvalidCode),
		errors.Is(err, qr.ErrInvalidStyle),
		errors.Is(err, qr.ErrEncodingTooLarge):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, shortener.ErrNotFound):
		return huma.Error404NotFound("short link not found")
	case errors.Is(err, shortener.ErrGenerationExhausted):
		logger.Error("short code generation exhausted", append(fields, zap.Error(err))...)

		return huma.Error503ServiceUnavailable("could not allocate a short code, try again")
	case errors.Is(err, shortener.ErrStoreUnavailable):
		logger.Error("link store unavailable", append(fields, zap.Error(err))...)

		return huma.Error503ServiceUnavailable("link store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", append(fields, zap.Error(err))...)

		return huma.Error503ServiceUnavailable("request timed out")
	default:
		logger.Error("request failed", append(fields, zap.Error(err))...)

		return huma.Error500InternalServerError("internal error")
	}
}
