// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

// ActionExecutor drives the target application. Every call is bounded by the
// executor's own timeouts; a timed-out call returns an error.
type ActionExecutor interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, direction string) error
	Resize(ctx context.Context, vp schemas.Viewport) error
	// PageState drains console and HTTP errors: each is returned at most once.
	PageState(ctx context.Context) (*schemas.PageState, error)
	Screenshot(ctx context.Context, name string) (string, error)
	Viewport() schemas.Viewport
	// BlockedUploads returns intercepted file choosers since the previous call.
	BlockedUploads() []schemas.BlockedUpload
	Close(ctx context.Context) error
}
