package media

import "context"

// Uploader stores a local file and returns its public URL. It never removes
// the local file; the caller owns it.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
