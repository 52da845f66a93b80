package relocate

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Uploader writes a local file to object storage under the given key.
type Uploader interface {
	Upload(ctx context.Context, key, path, contentType string) error
}

// WranglerUploader shells out to `wrangler r2 object put`, the same
// upload path the deploy tooling uses, so bucket credentials stay in
// wrangler's own config.
type WranglerUploader struct {
	bin    string
	bucket string
	logger *slog.Logger
}

func NewWranglerUploader(bin, bucket string, logger *slog.Logger) *WranglerUploader {
	return &WranglerUploader{
		bin:    bin,
		bucket: bucket,
		logger: logger,
	}
}

func (u *WranglerUploader) Upload(ctx context.Context, key, path, contentType string) error {
	cmd := exec.CommandContext(ctx, u.bin,
		"r2", "object", "put", u.bucket+"/"+key,
		"--file", path,
		"--content-type", contentType,
		"--remote",
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("wrangler r2 put %s: %w: %s", key, err, strings.TrimSpace(string(out)))
	}

	u.logger.Debug("uploaded object", "key", key, "content_type", contentType)
	return nil
}
