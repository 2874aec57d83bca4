package tool

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/captain/core"
)

// ReadImageToolName is the name of the image inspection tool.
const ReadImageToolName = "read_image"

// ImageMarker tags results carrying image content for re-injection.
const ImageMarker = "__vlm_image__"

const maxImageBytes = 10 << 20

// NewReadImageTool creates a tool that loads an image from the workspace.
// The result is a JSON document tagged with ImageMarker; the image itself is
// fed back to the model as a user message by the stream consumer.
func NewReadImageTool() Tool {
	return NewFunctionTool(
		ReadImageToolName,
		"Read an image file from the workspace so you can look at it. Supports png, jpeg, gif and webp.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Image path relative to the workspace"},
			},
			"required": []string{"path"},
		},
		readImage,
	)
}

func readImage(tc *core.ToolContext, args map[string]any) (any, error) {
	rel := stringArg(args, "path")
	path, err := resolvePath(tc.Workspace(), rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("image %s is too large (%d bytes)", rel, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := imageMimeType(path, data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", rel, mime)
	}

	payload := map[string]any{
		ImageMarker: true,
		"content": []map[string]any{
			{"type": "text", "text": fmt.Sprintf("Image %s (%s, %d bytes):", filepath.Base(path), mime, len(data))},
			{"type": "image", "mime_type": mime, "data": base64.StdEncoding.EncodeToString(data)},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func imageMimeType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return http.DetectContentType(data)
}
