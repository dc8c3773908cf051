package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/danavision/discovery-go/internal/ai"
	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	apperrors "github.com/danavision/discovery-go/internal/errors"
	"github.com/danavision/discovery-go/internal/mocks"
)

type fakeVisionProvider struct {
	images    []ai.ImageInput
	prompts   []string
	analyzeFn func(image ai.ImageInput, prompt string) (string, error)
}

func (f *fakeVisionProvider) AnalyzeImage(_ context.Context, image ai.ImageInput, prompt string) (string, error) {
	f.images = append(f.images, image)
	f.prompts = append(f.prompts, prompt)
	if f.analyzeFn != nil {
		return f.analyzeFn(image, prompt)
	}
	return `{"name": "Thing", "confidence": 0.5}`, nil
}

func pngUpload() model.ImageRef {
	return model.ImageRef{
		Base64:   base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		MIMEType: "image/png",
	}
}

func TestVisionService_IdentifyProduct_ParsesAnswer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().
		Save(gomock.Any(), []byte("png-bytes"), "image/png").
		Return("images/ab/cd.png", nil)

	provider := &fakeVisionProvider{analyzeFn: func(ai.ImageInput, string) (string, error) {
		return "Sure. " + `{"name": " PS5 Slim ", "brand": "Sony", "category": "console", ` +
			`"attributes": {"storage": "1TB"}, "confidence": 1.8}`, nil
	}}
	svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: provider})

	rec := &progressRecorder{}
	var patches []json.RawMessage
	checkpoint := func(ctx context.Context, progress int, patch json.RawMessage) error {
		patches = append(patches, patch)
		return rec.checkpoint()(ctx, progress, patch)
	}

	out, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{
		OwnerID:    "owner-1",
		Input:      &model.ProductIdentificationInput{ImageRef: pngUpload(), Hint: "game console"},
		Checkpoint: checkpoint,
	})
	require.NoError(t, err)

	require.NotNil(t, out.Product)
	assert.Equal(t, "PS5 Slim", out.Product.Name)
	assert.Equal(t, "Sony", out.Product.Brand)
	assert.Equal(t, 1.0, out.Product.Confidence, "confidence must clamp to [0,1]")
	assert.Equal(t, "images/ab/cd.png", out.ImagePath)
	assert.Empty(t, out.RawText)

	assert.Equal(t, []int{progressImageStored, progressVisionDone, progressVisionParsed}, rec.progress)
	require.NotEmpty(t, patches)
	assert.JSONEq(t, `{"image_path": "images/ab/cd.png"}`, string(patches[0]))

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "game console")
	assert.Equal(t, "image/png", provider.images[0].MIMEType)
}

func TestVisionService_IdentifyProduct_DegradesToRawText(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return("images/x.png", nil).Times(2)

	tests := []struct {
		name   string
		answer string
	}{
		{name: "no JSON at all", answer: "That looks like a game console."},
		{name: "JSON without a name", answer: `{"brand": "Sony", "confidence": 0.4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeVisionProvider{analyzeFn: func(ai.ImageInput, string) (string, error) {
				return tt.answer, nil
			}}
			svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: provider})

			out, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{
				OwnerID: "owner-1",
				Input:   &model.ProductIdentificationInput{ImageRef: pngUpload()},
			})
			require.NoError(t, err)
			assert.Nil(t, out.Product)
			assert.Equal(t, tt.answer, out.RawText)
		})
	}
}

func TestVisionService_IdentifyProduct_ProviderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return("images/x.png", nil)

	provider := &fakeVisionProvider{analyzeFn: func(ai.ImageInput, string) (string, error) {
		return "", errors.New("model overloaded")
	}}
	svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: provider})

	_, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{
		OwnerID: "owner-1",
		Input:   &model.ProductIdentificationInput{ImageRef: pngUpload()},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
}

func TestVisionService_IdentifyProduct_StoredImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().
		Load(gomock.Any(), "images/ab/cd.png").
		Return([]byte("stored-bytes"), "image/jpeg", nil)

	provider := &fakeVisionProvider{}
	svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: provider})

	out, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{
		OwnerID: "owner-1",
		Input:   &model.ProductIdentificationInput{ImageRef: model.ImageRef{Path: "images/ab/cd.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "images/ab/cd.png", out.ImagePath)
	require.Len(t, provider.images, 1)
	assert.Equal(t, []byte("stored-bytes"), provider.images[0].Data)
	assert.Equal(t, "image/jpeg", provider.images[0].MIMEType)
}

func TestVisionService_IdentifyProduct_MissingStoredImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().Load(gomock.Any(), "images/gone.png").Return(nil, "", data.ErrImageNotFound)

	svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: &fakeVisionProvider{}})

	_, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{
		OwnerID: "owner-1",
		Input:   &model.ProductIdentificationInput{ImageRef: model.ImageRef{Path: "images/gone.png"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestVisionService_AnalyzeImage_SurfacesExtractedJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	images := mocks.NewMockImageStore(ctrl)
	images.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return("images/x.png", nil)

	provider := &fakeVisionProvider{analyzeFn: func(_ ai.ImageInput, prompt string) (string, error) {
		assert.Equal(t, "read the label", prompt)
		return `The label says: {"calories": 120}`, nil
	}}
	svc := MustNewVisionService(VisionServiceOptions{Images: images, AI: provider})

	out, err := svc.AnalyzeImage(context.Background(), AnalyzeImageParams{
		OwnerID: "owner-1",
		Input:   &model.ImageAnalysisInput{ImageRef: pngUpload(), Prompt: "read the label"},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Analysis, "The label says")
	assert.JSONEq(t, `{"calories": 120}`, string(out.Extracted))
}

func TestDecodeImageBase64_DataURL(t *testing.T) {
	plain := base64.StdEncoding.EncodeToString([]byte("img"))

	got, err := decodeImageBase64("data:image/png;base64," + plain)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)

	got, err = decodeImageBase64("  " + plain + "")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)

	_, err = decodeImageBase64("!!not base64!!")
	require.Error(t, err)
}

func TestVisionService_InputValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := MustNewVisionService(VisionServiceOptions{
		Images: mocks.NewMockImageStore(ctrl),
		AI:     &fakeVisionProvider{},
	})

	_, err := svc.IdentifyProduct(context.Background(), IdentifyProductParams{OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.AnalyzeImage(context.Background(), AnalyzeImageParams{OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
