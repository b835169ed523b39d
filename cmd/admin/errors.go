package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/client"
)

// explain turns API errors into messages an operator can act on.
func explain(err error) error {
	var verr *pastevent.ValidationError
	var apiErr *client.Error

	switch {
	case errors.As(err, &verr):
		lines := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			lines = append(lines, fmt.Sprintf("  %s: %s", f.Field, f.Message))
		}
		return fmt.Errorf("document rejected:\n%s", strings.Join(lines, "\n"))
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("not signed in or token rejected; run \"admin token issue\": %w", err)
	case errors.Is(err, client.ErrUnavailable):
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return fmt.Errorf("credential verification is unavailable, retry in %s; your token was kept: %w", apiErr.RetryAfter, err)
		}
		return fmt.Errorf("credential verification is unavailable; your token was kept: %w", err)
	case errors.Is(err, client.ErrConflict):
		return fmt.Errorf("slug already taken: %w", err)
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("not found: %w", err)
	default:
		return err
	}
}
