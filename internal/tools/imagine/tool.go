// Package imagine provides the image generation and editing tools. Every
// produced image is stored, recorded as an artifact and announced through
// the turn's notifier.
package imagine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/artifacts"
	"github.com/roelfdiedericks/toolgate/internal/imagegen"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// ArtifactStore records and resolves artifacts.
type ArtifactStore interface {
	Record(ctx context.Context, rec artifacts.Record) (artifacts.Record, error)
	Get(ctx context.Context, id string) (artifacts.Record, error)
}

// Deps is everything the image tools need for one turn.
type Deps struct {
	Provider  imagegen.Provider
	Media     *media.MediaStore
	Artifacts ArtifactStore
	ChatID    string
	MessageID string
	Notify    func(types.ArtifactNotice)
}

// GenerateTool creates a new image from a prompt.
type GenerateTool struct {
	deps Deps
}

// NewGenerateTool returns the generate_image tool.
func NewGenerateTool(deps Deps) *GenerateTool {
	return &GenerateTool{deps: deps}
}

func (t *GenerateTool) Name() string {
	return "generate_image"
}

func (t *GenerateTool) Description() string {
	return "Generate an image from a text prompt. The image is shown to the user automatically; " +
		"the result contains its artifactId, which edit_image accepts as imageId."
}

func (t *GenerateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Detailed description of the image to create",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *GenerateTool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return types.Failure("prompt is required"), nil
	}

	L_debug("generate_image: generating", "provider", t.deps.Provider.Name(), "model", t.deps.Provider.Model())

	img, err := t.deps.Provider.Generate(ctx, params.Prompt)
	if err != nil {
		return types.Envelope{}, err
	}
	return persist(ctx, t.deps, img, params.Prompt, "")
}

// EditTool edits an earlier artifact.
type EditTool struct {
	deps Deps
}

// NewEditTool returns the edit_image tool.
func NewEditTool(deps Deps) *EditTool {
	return &EditTool{deps: deps}
}

func (t *EditTool) Name() string {
	return "edit_image"
}

func (t *EditTool) Description() string {
	return "Edit a previously generated image. Pass the artifactId of the source image as imageId " +
		"and describe the change; the result is a new image shown to the user."
}

func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"imageId": map[string]any{
				"type":        "string",
				"description": "artifactId of the image to edit",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "The change to make",
			},
		},
		"required": []string{"imageId", "prompt"},
	}
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		ImageID string `json:"imageId"`
		Prompt  string `json:"prompt"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return types.Failure("prompt is required"), nil
	}

	source, err := t.deps.Artifacts.Get(ctx, params.ImageID)
	if errors.Is(err, artifacts.ErrNotFound) {
		return types.Failuref("image not found: %s", params.ImageID), nil
	}
	if err != nil {
		return types.Envelope{}, err
	}

	data, err := t.deps.Media.ReadFile(source.Path)
	if err != nil {
		L_warn("edit_image: source file missing", "id", source.ID, "path", source.Path, "error", err)
		return types.Failuref("image not found: %s", params.ImageID), nil
	}

	L_debug("edit_image: editing", "source", source.ID, "provider", t.deps.Provider.Name())

	img, err := t.deps.Provider.Edit(ctx, params.Prompt, data)
	if err != nil {
		return types.Envelope{}, err
	}
	return persist(ctx, t.deps, img, params.Prompt, source.ID)
}

// persist stores img, records the artifact and notifies. Nothing is
// announced once ctx is done.
func persist(ctx context.Context, deps Deps, img *imagegen.Image, prompt, sourceID string) (types.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return types.Envelope{}, err
	}

	mimeType := media.DetectMIME(img.Data)
	if !media.IsSupported(mimeType) {
		return types.Envelope{}, fmt.Errorf("provider returned unsupported content: %s", mimeType)
	}

	_, relPath, err := deps.Media.Save(img.Data, media.GeneratedDir, media.ExtensionFor(mimeType))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("failed to store image: %w", err)
	}

	rec, err := deps.Artifacts.Record(ctx, artifacts.Record{
		ChatID:    deps.ChatID,
		MessageID: deps.MessageID,
		Kind:      "image",
		Filename:  path.Base(relPath),
		Path:      relPath,
		MimeType:  mimeType,
		Size:      int64(len(img.Data)),
		Prompt:    prompt,
		Model:     deps.Provider.Model(),
		SourceID:  sourceID,
	})
	if err != nil {
		if rmErr := deps.Media.Remove(relPath); rmErr != nil {
			L_warn("imagine: failed to remove orphaned file", "path", relPath, "error", rmErr)
		}
		return types.Envelope{}, err
	}

	if err := ctx.Err(); err != nil {
		L_debug("imagine: cancelled before notify", "id", rec.ID)
		return types.Envelope{}, err
	}

	if deps.Notify != nil {
		deps.Notify(types.ArtifactNotice{
			ArtifactID: rec.ID,
			Filename:   rec.Filename,
			Prompt:     prompt,
			Model:      rec.Model,
		})
	}

	L_info("imagine: image stored", "id", rec.ID, "file", rec.Filename, "bytes", rec.Size, "source", sourceID)

	fields := map[string]any{
		"artifactId": rec.ID,
		"filename":   rec.Filename,
		"mimeType":   rec.MimeType,
		"model":      rec.Model,
	}
	if img.RevisedPrompt != "" {
		fields["revisedPrompt"] = img.RevisedPrompt
	}
	if sourceID != "" {
		fields["sourceId"] = sourceID
	}
	return types.Success(fields), nil
}
