package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
)

// Progress checkpoints for vision runs.
const (
	progressImageStored  = 10
	progressVisionDone   = 40
	progressVisionParsed = 80
)

// VisionProvider is the slice of the AI gateway vision runs use.
// *ai.Gateway satisfies it.
type VisionProvider interface {
	AnalyzeImage(ctx context.Context, image ai.ImageInput, prompt string) (string, error)
}

// VisionServiceOptions groups dependencies for VisionService.
type VisionServiceOptions struct {
	Images core.ImageStore // Required: image persistence
	AI     VisionProvider  // Required: vision-capable provider gateway

	// MaxImageBytes rejects inline uploads larger than this decoded size.
	// Zero disables the limit.
	MaxImageBytes int64

	Logger *slog.Logger // Optional: structured logger
}

// VisionService runs the vision-backed job types: product identification
// and free-form image analysis.
type VisionService struct {
	images        core.ImageStore
	ai            VisionProvider
	maxImageBytes int64
	logger        *slog.Logger
}

// NewVisionService constructs a new VisionService.
func NewVisionService(opts VisionServiceOptions) (*VisionService, error) {
	if opts.Images == nil {
		return nil, errors.New("ImageStore is required")
	}
	if opts.AI == nil {
		return nil, errors.New("VisionProvider is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "vision_service")
	}

	return &VisionService{
		images:        opts.Images,
		ai:            opts.AI,
		maxImageBytes: opts.MaxImageBytes,
		logger:        logger,
	}, nil
}

// MustNewVisionService constructs a new VisionService and panics on error.
func MustNewVisionService(opts VisionServiceOptions) *VisionService {
	svc, err := NewVisionService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create VisionService: %v", err))
	}
	return svc
}

// IdentifyProductParams carries one identification run's inputs.
type IdentifyProductParams struct {
	OwnerID    string
	Input      *model.ProductIdentificationInput
	Run        *runlog.Logger
	Checkpoint runcontext.Checkpoint
}

// IdentifyProduct stores the referenced image, asks the vision provider to
// name the product, and parses the structured answer. A parse failure keeps
// the raw answer instead of failing the run.
func (s *VisionService) IdentifyProduct(
	ctx context.Context,
	params IdentifyProductParams,
) (*model.ProductIdentificationOutput, error) {
	if params.Input == nil {
		return nil, apperrors.Validation("identification input is required")
	}
	if err := params.Input.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	run, checkpoint := runDefaults(params.Run, params.Checkpoint, "product-identification")

	image, storedPath, err := s.resolveImage(ctx, &params.Input.ImageRef)
	if err != nil {
		return nil, err
	}
	if err := checkpoint(ctx, progressImageStored, pathPatch(storedPath)); err != nil {
		return nil, err
	}

	run.Count(runlog.CounterProvidersQueried, 1)
	answer, err := s.ai.AnalyzeImage(ctx, image, identificationPrompt(params.Input.Hint))
	if err != nil {
		run.Count(runlog.CounterProvidersFailed, 1)
		run.Error("vision call failed", map[string]any{"error": err.Error()})
		return nil, apperrors.Provider("vision", err)
	}
	if err := checkpoint(ctx, progressVisionDone, nil); err != nil {
		return nil, err
	}

	out := &model.ProductIdentificationOutput{ImagePath: storedPath}
	product, ok := ai.ExtractJSONObject[model.IdentifiedProduct](answer)
	if !ok || strings.TrimSpace(product.Name) == "" {
		run.Warning("identification answer held no product, keeping raw text", nil)
		out.RawText = answer
	} else {
		product.Name = strings.TrimSpace(product.Name)
		product.Confidence = clamp01(product.Confidence)
		out.Product = &product
		run.Success("product identified", map[string]any{
			"name":       product.Name,
			"confidence": product.Confidence,
		})
	}
	if err := checkpoint(ctx, progressVisionParsed, nil); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "identification complete",
			"owner_id", params.OwnerID,
			"parsed", out.Product != nil,
		)
	}
	return out, nil
}

// AnalyzeImageParams carries one analysis run's inputs.
type AnalyzeImageParams struct {
	OwnerID    string
	Input      *model.ImageAnalysisInput
	Run        *runlog.Logger
	Checkpoint runcontext.Checkpoint
}

// AnalyzeImage stores the referenced image and passes the caller's prompt
// through to the vision provider. When the answer embeds a JSON object it
// is surfaced separately so callers get both forms.
func (s *VisionService) AnalyzeImage(
	ctx context.Context,
	params AnalyzeImageParams,
) (*model.ImageAnalysisOutput, error) {
	if params.Input == nil {
		return nil, apperrors.Validation("analysis input is required")
	}
	if err := params.Input.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	run, checkpoint := runDefaults(params.Run, params.Checkpoint, "image-analysis")

	image, storedPath, err := s.resolveImage(ctx, &params.Input.ImageRef)
	if err != nil {
		return nil, err
	}
	if err := checkpoint(ctx, progressImageStored, pathPatch(storedPath)); err != nil {
		return nil, err
	}

	run.Count(runlog.CounterProvidersQueried, 1)
	answer, err := s.ai.AnalyzeImage(ctx, image, params.Input.Prompt)
	if err != nil {
		run.Count(runlog.CounterProvidersFailed, 1)
		run.Error("vision call failed", map[string]any{"error": err.Error()})
		return nil, apperrors.Provider("vision", err)
	}
	if err := checkpoint(ctx, progressVisionDone, nil); err != nil {
		return nil, err
	}

	out := &model.ImageAnalysisOutput{Analysis: answer, ImagePath: storedPath}
	if extracted, ok := ai.ExtractJSONObject[json.RawMessage](answer); ok {
		out.Extracted = extracted
	}
	if err := checkpoint(ctx, progressVisionParsed, nil); err != nil {
		return nil, err
	}
	run.Success("analysis complete", nil)
	return out, nil
}

// resolveImage turns an image reference into provider-ready bytes. Inline
// uploads are persisted first so outputs can reference the stored copy.
func (s *VisionService) resolveImage(ctx context.Context, ref *model.ImageRef) (ai.ImageInput, string, error) {
	if ref.Path != "" {
		raw, contentType, err := s.images.Load(ctx, ref.Path)
		if err != nil {
			if errors.Is(err, data.ErrImageNotFound) || errors.Is(err, data.ErrInvalidImageRef) {
				return ai.ImageInput{}, "", apperrors.NotFoundf("stored image %s not found", ref.Path)
			}
			return ai.ImageInput{}, "", fmt.Errorf("load image %s: %w", ref.Path, err)
		}
		if contentType == "" {
			contentType = ref.MIMEType
		}
		return ai.ImageInput{Data: raw, MIMEType: contentType}, ref.Path, nil
	}

	raw, err := decodeImageBase64(ref.Base64)
	if err != nil {
		return ai.ImageInput{}, "", apperrors.ValidationField("image_base64", "not valid base64")
	}
	if s.maxImageBytes > 0 && int64(len(raw)) > s.maxImageBytes {
		return ai.ImageInput{}, "", apperrors.ValidationField("image_base64",
			fmt.Sprintf("image exceeds the %d byte limit", s.maxImageBytes))
	}
	storedPath, err := s.images.Save(ctx, raw, ref.MIMEType)
	if err != nil {
		return ai.ImageInput{}, "", fmt.Errorf("store image: %w", err)
	}
	return ai.ImageInput{Data: raw, MIMEType: ref.MIMEType}, storedPath, nil
}

// decodeImageBase64 accepts plain base64 and data-URL payloads, which web
// clients commonly send unstripped.
func decodeImageBase64(b64 string) ([]byte, error) {
	v := strings.TrimSpace(b64)
	if strings.HasPrefix(v, "data:") {
		if i := strings.Index(v, ","); i >= 0 {
			v = v[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(v)
}

func identificationPrompt(hint string) string {
	var b strings.Builder
	b.WriteString("Identify the retail product in this image.\n")
	b.WriteString("Respond with only a JSON object of this exact shape:\n")
	b.WriteString(`{"name": "<product name>", "brand": "<brand or empty>", "category": "<category or empty>", ` +
		`"attributes": {"<attribute>": "<value>"}, "confidence": <0..1>}`)
	if trimmed := strings.TrimSpace(hint); trimmed != "" {
		fmt.Fprintf(&b, "\nContext from the user: %q", trimmed)
	}
	return b.String()
}

// pathPatch records the stored image location in observable job output.
func pathPatch(path string) json.RawMessage {
	if path == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]string{"image_path": path})
	if err != nil {
		return nil
	}
	return raw
}

// runDefaults fills in the inert run log and checkpoint used by synchronous
// callers and tests.
func runDefaults(run *runlog.Logger, checkpoint runcontext.Checkpoint, scope string) (*runlog.Logger, runcontext.Checkpoint) {
	if run == nil {
		run = runlog.New(scope)
	}
	if checkpoint == nil {
		checkpoint = runcontext.Noop()
	}
	return run, checkpoint
}
