package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/domain/runcontext"
	"github.com/danavision/discovery-go/internal/domain/runlog"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/service"
)

// Discovery runs split the progress range between their stages: the
// identification slice ends where the price slice begins, keeping overall
// progress monotonic across the composite run.
const (
	discoveryIdentifyEnd = 35
	discoveryPriceEnd    = 95
)

func (r *Runner) handlePriceSearch(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.PriceSearchInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	discovery, fromCache, err := r.pricing.DiscoverPrices(ctx, service.PriceDiscoveryParams{
		OwnerID:     job.OwnerID,
		Query:       input.Query,
		Options:     input.Options,
		BypassCache: job.Type == model.JobTypePriceRefresh,
		Run:         run,
		Checkpoint:  checkpoint,
	})
	if err != nil {
		return nil, err
	}

	return marshalOutput(&model.PriceSearchOutput{
		Query:     input.Query,
		Discovery: discovery,
		FromCache: fromCache,
	})
}

func (r *Runner) handleIdentification(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.ProductIdentificationInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	out, err := r.vision.IdentifyProduct(ctx, service.IdentifyProductParams{
		OwnerID:    job.OwnerID,
		Input:      &input,
		Run:        run,
		Checkpoint: checkpoint,
	})
	if err != nil {
		return nil, err
	}
	return marshalOutput(out)
}

func (r *Runner) handleImageAnalysis(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.ImageAnalysisInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	out, err := r.vision.AnalyzeImage(ctx, service.AnalyzeImageParams{
		OwnerID:    job.OwnerID,
		Input:      &input,
		Run:        run,
		Checkpoint: checkpoint,
	})
	if err != nil {
		return nil, err
	}
	return marshalOutput(out)
}

func (r *Runner) handleSmartFill(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.SmartFillInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	out, err := r.smartFill.Suggest(ctx, service.SmartFillParams{
		OwnerID:    job.OwnerID,
		Input:      &input,
		Run:        run,
		Checkpoint: checkpoint,
	})
	if err != nil {
		return nil, err
	}
	return marshalOutput(out)
}

func (r *Runner) handleNearbyStores(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.NearbyStoreDiscoveryInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	out, _, err := r.localStores.DiscoverNearby(ctx, service.NearbyStoreParams{
		OwnerID:    job.OwnerID,
		Input:      &input,
		Run:        run,
		Checkpoint: checkpoint,
	})
	if err != nil {
		return nil, err
	}
	return marshalOutput(out)
}

// handleDiscovery runs the composite pipeline: when the input carries an
// image, a vision identification stage names the product and its name feeds
// the price discovery stage. Output keeps both halves. If identification
// fails to produce a name and no query was given, the run has nothing to
// search for and fails.
func (r *Runner) handleDiscovery(
	ctx context.Context,
	job *model.Job,
	run *runlog.Logger,
	checkpoint runcontext.Checkpoint,
) (json.RawMessage, error) {
	var input model.DiscoveryInput
	if err := model.DecodeInput(job.Input, &input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	out := &model.DiscoveryOutput{}
	query := input.Query
	priceCheckpoint := checkpoint

	if input.Image != nil {
		if r.vision == nil {
			return nil, apperrors.ProviderUnavailable("no vision provider configured for image discovery")
		}
		ident, err := r.vision.IdentifyProduct(ctx, service.IdentifyProductParams{
			OwnerID:    job.OwnerID,
			Input:      &model.ProductIdentificationInput{ImageRef: *input.Image, Hint: input.Query},
			Run:        run,
			Checkpoint: scaleCheckpoint(checkpoint, 0, discoveryIdentifyEnd),
		})
		if err != nil {
			return nil, err
		}
		out.Product = ident.Product
		if ident.Product != nil {
			query = ident.Product.Name
		}
		if query == "" {
			return nil, apperrors.Provider("vision",
				errors.New("identification produced no product name to search for"))
		}
		priceCheckpoint = scaleCheckpoint(checkpoint, discoveryIdentifyEnd, discoveryPriceEnd)
	}

	discovery, fromCache, err := r.pricing.DiscoverPrices(ctx, service.PriceDiscoveryParams{
		OwnerID:     job.OwnerID,
		Query:       query,
		Options:     input.Options,
		BypassCache: job.Type == model.JobTypeDiscoveryRefresh,
		Run:         run,
		Checkpoint:  priceCheckpoint,
	})
	if err != nil {
		// Keep the identified product on the failed row; the image stage
		// already paid for it.
		partial, _ := marshalOutput(out)
		return partial, err
	}

	out.Query = query
	out.Discovery = discovery
	out.FromCache = fromCache
	return marshalOutput(out)
}

// scaleCheckpoint maps a stage pipeline's own 0-100 progress into the
// [lo, hi] slice of the surrounding run.
func scaleCheckpoint(base runcontext.Checkpoint, lo, hi int) runcontext.Checkpoint {
	return func(ctx context.Context, progress int, patch json.RawMessage) error {
		return base(ctx, lo+(hi-lo)*progress/100, patch)
	}
}

func marshalOutput(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal job output: %w", err)
	}
	return raw, nil
}
