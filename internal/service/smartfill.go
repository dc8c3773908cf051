package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
)

const (
	progressFillPrompted  = 10
	progressFillCompleted = 60
	progressFillParsed    = 85
)

// defaultMaxSuggestions caps how many additions one smart-fill run proposes.
const defaultMaxSuggestions = 10

// SmartFillServiceOptions groups dependencies for SmartFillService.
type SmartFillServiceOptions struct {
	AI Completer // Required: suggestion source

	// MaxSuggestions caps proposed additions per run. Defaults to 10.
	MaxSuggestions int

	Logger *slog.Logger // Optional: structured logger
}

// SmartFillService proposes shopping list additions: the owner's current
// items go into a completion prompt and the answer is parsed into structured
// suggestions. An answer that does not parse degrades to raw text so the
// job still completes with something reviewable.
type SmartFillService struct {
	ai             Completer
	maxSuggestions int
	logger         *slog.Logger
}

// NewSmartFillService constructs a new SmartFillService.
func NewSmartFillService(opts SmartFillServiceOptions) (*SmartFillService, error) {
	if opts.AI == nil {
		return nil, errors.New("Completer is required")
	}
	maxSuggestions := opts.MaxSuggestions
	if maxSuggestions < 1 {
		maxSuggestions = defaultMaxSuggestions
	}
	return &SmartFillService{
		ai:             opts.AI,
		maxSuggestions: maxSuggestions,
		logger:         opts.Logger,
	}, nil
}

// MustNewSmartFillService constructs a new SmartFillService and panics on error.
func MustNewSmartFillService(opts SmartFillServiceOptions) *SmartFillService {
	svc, err := NewSmartFillService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create SmartFillService: %v", err))
	}
	return svc
}

// SmartFillParams carries one smart-fill run's inputs. Run and Checkpoint
// are optional; missing ones are replaced with inert defaults.
type SmartFillParams struct {
	OwnerID string
	Input   *model.SmartFillInput

	Run        *runlog.Logger
	Checkpoint runcontext.Checkpoint
}

// Suggest proposes additions for a list given its current items. Suggestions
// that duplicate existing items are dropped, so an empty result with no raw
// text means the list already looks complete.
func (s *SmartFillService) Suggest(
	ctx context.Context,
	params SmartFillParams,
) (*model.SmartFillOutput, error) {
	if params.Input == nil {
		return nil, apperrors.Validation("smart-fill input is required")
	}
	if err := params.Input.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	input := params.Input
	run, checkpoint := runDefaults(params.Run, params.Checkpoint, "smart-fill")

	prompt := suggestionPrompt(input, s.maxSuggestions)
	if err := checkpoint(ctx, progressFillPrompted, nil); err != nil {
		return nil, err
	}

	run.Count(runlog.CounterProvidersQueried, 1)
	answer, err := s.ai.Complete(ctx, prompt)
	if err != nil {
		run.Count(runlog.CounterProvidersFailed, 1)
		run.Error("suggestion completion failed", map[string]any{"error": err.Error()})
		return nil, apperrors.Provider("smart-fill", err)
	}
	if err := checkpoint(ctx, progressFillCompleted, nil); err != nil {
		return nil, err
	}

	out := &model.SmartFillOutput{Suggestions: []model.SmartFillSuggestion{}}
	suggestions, ok := ai.ExtractJSONArray[[]model.SmartFillSuggestion](answer)
	if !ok {
		run.Warning("suggestion answer did not parse, keeping raw text", nil)
		out.RawText = answer
	} else {
		out.Suggestions = filterSuggestions(suggestions, input.Items, s.maxSuggestions)
		run.Success("suggestions parsed", map[string]any{
			"proposed": len(suggestions),
			"kept":     len(out.Suggestions),
		})
	}
	if err := checkpoint(ctx, progressFillParsed, countPatch("suggestions", len(out.Suggestions))); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "smart fill complete",
			"owner_id", params.OwnerID,
			"list_id", input.ListID,
			"suggestions", len(out.Suggestions),
		)
	}
	return out, nil
}

func suggestionPrompt(input *model.SmartFillInput, limit int) string {
	var b strings.Builder
	b.WriteString("A shopping list currently contains these items:\n")
	if len(input.Items) == 0 {
		b.WriteString("(the list is empty)\n")
	}
	for _, item := range input.Items {
		if item.Quantity != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", item.Name, item.Quantity)
		} else {
			fmt.Fprintf(&b, "- %s\n", item.Name)
		}
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		fmt.Fprintf(&b, "Note from the owner: %q\n", note)
	}
	fmt.Fprintf(&b, "\nSuggest up to %d items commonly bought alongside these that are missing from the list.\n", limit)
	b.WriteString("Respond with only a JSON array of this exact shape:\n")
	b.WriteString(`[{"name": "<item name>", "quantity": "<suggested quantity or empty>", "reason": "<one short sentence>"}]`)
	return b.String()
}

// filterSuggestions drops nameless entries, duplicates of existing items,
// and repeats, then caps the list.
func filterSuggestions(
	suggestions []model.SmartFillSuggestion,
	existing []model.SmartFillItem,
	limit int,
) []model.SmartFillSuggestion {
	have := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		have[strings.ToLower(strings.TrimSpace(item.Name))] = struct{}{}
	}
	out := make([]model.SmartFillSuggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		sg.Name = strings.TrimSpace(sg.Name)
		if sg.Name == "" {
			continue
		}
		key := strings.ToLower(sg.Name)
		if _, dup := have[key]; dup {
			continue
		}
		have[key] = struct{}{}
		out = append(out, sg)
		if len(out) >= limit {
			break
		}
	}
	return out
}
