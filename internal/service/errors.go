package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"chatup/internal/domain"
)

// storageErr tags repository failures with ErrStorage unless they already
// carry a domain meaning the caller maps on its own.
func storageErr(op string, err error) error {
	for _, known := range []error{domain.ErrConflict, domain.ErrNotFound, domain.ErrStorage} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}

// discardImage removes an upload whose record failed to save. The caller is
// already returning an error, so a failed removal is only logged.
func discardImage(ctx context.Context, images ImageHost, url string) {
	if err := images.Remove(ctx, url); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("url", url).Msg("failed to remove orphaned image")
	}
}
