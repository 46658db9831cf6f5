package plant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/image"
	"hydrodiag/internal/gateway/repository/records"
	llmclient "hydrodiag/internal/llmClient"
)

const DefaultMaxImageBytes = 10 << 20

// DiagnoseInput is one plant image plus optional grower context.
type DiagnoseInput struct {
	Image       []byte
	Description string
	CropType    string
	Temperature *float64
	Humidity    *float64
	EC          *float64
}

type DiagnoseResult struct {
	DiagnosisID string
	ImageURL    string
	Result      entity.PlantResult
}

type Options struct {
	MaxImageBytes int
	Now           func() time.Time
	NewID         func() string
}

type Service struct {
	llm    llmclient.LLMClient
	store  records.PlantStore
	images image.Store
	opts   Options
}

func New(llm llmclient.LLMClient, store records.PlantStore, images image.Store, opts Options) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{llm: llm, store: store, images: images, opts: opts}
}

// Diagnose asks the backend about one plant image, stores the image and the
// result, and returns the result with its new record id.
func (s *Service) Diagnose(ctx context.Context, user entity.User, in DiagnoseInput) (DiagnoseResult, error) {
	contentType, err := s.validate(in)
	if err != nil {
		return DiagnoseResult{}, err
	}

	raw, err := s.llm.Generate(ctx, llmclient.Request{
		Phase:  "plant",
		System: diagnosis.PlantSystemPrompt,
		Messages: []llmclient.Message{{
			Role: llmclient.RoleUser,
			Text: diagnosis.PlantUserPrompt(diagnosis.PlantContext{
				Description: in.Description,
				CropType:    in.CropType,
				Temperature: in.Temperature,
				Humidity:    in.Humidity,
				EC:          in.EC,
			}),
			Images: []llmclient.Image{{MIMEType: contentType, Data: in.Image}},
		}},
		JSON: true,
	})
	if err != nil {
		return DiagnoseResult{}, fmt.Errorf("%w: %w", diagnosis.ErrBackendUnavailable, err)
	}
	result, err := diagnosis.ParsePlantResult(raw)
	if err != nil {
		log.Printf("plant: malformed reply err=%v", err)
		return DiagnoseResult{}, err
	}

	owner := user.OwnerID()
	id := s.opts.NewID()
	url, err := s.images.Put(ctx, image.PlantImageKey(owner, id, contentType), in.Image, contentType)
	if err != nil {
		return DiagnoseResult{}, fmt.Errorf("store image: %w", err)
	}

	record := entity.PlantDiagnosis{
		ID:          id,
		UserID:      owner,
		ImageURL:    url,
		Description: strings.TrimSpace(in.Description),
		CropType:    strings.TrimSpace(in.CropType),
		Temperature: in.Temperature,
		Humidity:    in.Humidity,
		EC:          in.EC,
		Result:      result,
		CreatedAt:   s.opts.Now().UTC(),
	}
	if err := s.store.SavePlantDiagnosis(ctx, record); err != nil {
		if !errors.Is(err, diagnosis.ErrStoreUnavailable) {
			return DiagnoseResult{}, fmt.Errorf("save plant diagnosis: %w", err)
		}
		log.Printf("plant: warning: store unavailable, diagnosis not saved id=%s err=%v", id, err)
	}
	return DiagnoseResult{DiagnosisID: id, ImageURL: url, Result: result}, nil
}

// FollowUp answers a free-text question about a prior diagnosis. The reply is
// returned as the model wrote it and nothing is persisted.
func (s *Service) FollowUp(ctx context.Context, prior json.RawMessage, question string, img *llmclient.Image) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", diagnosis.Invalid("question", "is required")
	}
	if len(prior) == 0 || !json.Valid(prior) {
		return "", diagnosis.Invalid("diagnosisResult", "must be a JSON value")
	}
	msg := llmclient.Message{Role: llmclient.RoleUser, Text: diagnosis.FollowUpUserPrompt(question)}
	if img != nil && len(img.Data) > 0 {
		attached := *img
		if attached.MIMEType == "" {
			attached.MIMEType = image.DetectContentType(attached.Data)
		}
		msg.Images = []llmclient.Image{attached}
	}
	answer, err := s.llm.Generate(ctx, llmclient.Request{
		Phase:    "followup",
		System:   diagnosis.FollowUpSystemPrompt(prior),
		Messages: []llmclient.Message{msg},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", diagnosis.ErrBackendUnavailable, err)
	}
	return answer, nil
}

// ListForUser returns the user's diagnoses, most recent first.
// Anonymous callers always get an empty list.
func (s *Service) ListForUser(ctx context.Context, user entity.User) ([]entity.PlantDiagnosis, error) {
	if user.IsAnonymous() {
		return []entity.PlantDiagnosis{}, nil
	}
	list, err := s.store.ListPlantDiagnoses(ctx, user.ID)
	if err != nil {
		if errors.Is(err, diagnosis.ErrStoreUnavailable) {
			log.Printf("plant: store unavailable, returning empty history user=%s err=%v", user.ID, err)
			return []entity.PlantDiagnosis{}, nil
		}
		return nil, err
	}
	if list == nil {
		list = []entity.PlantDiagnosis{}
	}
	return list, nil
}

func (s *Service) validate(in DiagnoseInput) (string, error) {
	if len(in.Image) == 0 {
		return "", diagnosis.Invalid("image", "is required")
	}
	if len(in.Image) > s.opts.MaxImageBytes {
		return "", diagnosis.Invalid("image", fmt.Sprintf("exceeds %d bytes", s.opts.MaxImageBytes))
	}
	contentType := image.DetectContentType(in.Image)
	if !image.IsImage(contentType) {
		return "", diagnosis.Invalid("image", "is not an image ("+contentType+")")
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"temperature", in.Temperature},
		{"humidity", in.Humidity},
		{"ec", in.EC},
	} {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return "", diagnosis.Invalid(f.name, "must be a finite number")
		}
	}
	if in.Humidity != nil && (*in.Humidity < 0 || *in.Humidity > 100) {
		return "", diagnosis.Invalid("humidity", "must be between 0 and 100")
	}
	if in.EC != nil && *in.EC < 0 {
		return "", diagnosis.Invalid("ec", "must not be negative")
	}
	return contentType, nil
}
