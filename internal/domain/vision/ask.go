package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// AskImageFile sends a single image from disk with the question.
func (d *Dispatcher) AskImageFile(ctx context.Context, provider, question, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrImageNotFound)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return "", fmt.Errorf("read image %s: %w", path, err)
	}

	return d.Dispatch(ctx, DispatchRequest{
		Question: question,
		Images:   []EncodedImage{EncodedImage(base64.StdEncoding.EncodeToString(data))},
		Provider: provider,
	})
}
