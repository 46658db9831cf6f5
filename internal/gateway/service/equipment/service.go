package equipment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/repository/records"
	llmclient "hydrodiag/internal/llmClient"
)

// Request is one user turn. It is either StartSession or ContinueSession.
type Request interface {
	turn() (message string, image *llmclient.Image)
}

// StartSession opens a new conversation.
type StartSession struct {
	Message string
	Image   *llmclient.Image
}

// ContinueSession adds a turn to an existing ongoing conversation.
type ContinueSession struct {
	SessionID string
	Message   string
	Image     *llmclient.Image
}

func (r StartSession) turn() (string, *llmclient.Image)    { return r.Message, r.Image }
func (r ContinueSession) turn() (string, *llmclient.Image) { return r.Message, r.Image }

// NewRequest maps an optional session id onto the two request variants.
func NewRequest(sessionID, message string, image *llmclient.Image) Request {
	if id := strings.TrimSpace(sessionID); id != "" {
		return ContinueSession{SessionID: id, Message: message, Image: image}
	}
	return StartSession{Message: message, Image: image}
}

// TurnResult is the parsed outcome of one turn.
type TurnResult struct {
	SessionID        string
	Stage            diagnosis.Stage
	NextQuestion     string
	Diagnosis        *entity.EquipmentDiagnosis
	Remediation      *entity.Remediation
	PreventiveAdvice string
	// Session is the record after the turn was applied.
	Session entity.EquipmentSession
}

type Options struct {
	// MaxQuestions, when positive, makes the service demand a final diagnosis
	// once the model has asked that many questions.
	MaxQuestions int
	Now          func() time.Time
	NewID        func() string
}

type Service struct {
	llm   llmclient.LLMClient
	store records.SessionStore
	opts  Options

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(llm llmclient.LLMClient, store records.SessionStore, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.MaxQuestions < 0 {
		opts.MaxQuestions = 0
	}
	return &Service{
		llm:      llm,
		store:    store,
		opts:     opts,
		inFlight: make(map[string]struct{}),
	}
}

// Continue runs one turn of the conversation for user.
func (s *Service) Continue(ctx context.Context, user entity.User, req Request) (TurnResult, error) {
	if req == nil {
		return TurnResult{}, diagnosis.Invalid("message", "is required")
	}
	message, image := req.turn()
	message = strings.TrimSpace(message)
	if message == "" {
		return TurnResult{}, diagnosis.Invalid("message", "is required")
	}

	var (
		sess    entity.EquipmentSession
		isNew   bool
		persist = true
		release func()
		err     error
	)
	switch r := req.(type) {
	case StartSession:
		now := s.opts.Now().UTC()
		sess = entity.EquipmentSession{
			ID:                  s.opts.NewID(),
			UserID:              user.OwnerID(),
			ConversationHistory: []entity.Turn{},
			Status:              entity.SessionOngoing,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		isNew = true
		if release, err = s.acquire(sess.ID); err != nil {
			return TurnResult{}, err
		}
	case ContinueSession:
		id := strings.TrimSpace(r.SessionID)
		if id == "" {
			return TurnResult{}, diagnosis.Invalid("sessionId", "is required")
		}
		// The guard spans load through save.
		if release, err = s.acquire(id); err != nil {
			return TurnResult{}, err
		}
		loaded, err := s.store.GetEquipmentSession(ctx, id)
		switch {
		case err == nil:
			sess = loaded
		case errors.Is(err, records.ErrNotFound):
			release()
			return TurnResult{}, fmt.Errorf("%w: %s", diagnosis.ErrSessionNotFound, id)
		case errors.Is(err, diagnosis.ErrStoreUnavailable):
			log.Printf("equipment: store unavailable, continuing without history session=%s err=%v", id, err)
			now := s.opts.Now().UTC()
			sess = entity.EquipmentSession{
				ID:                  id,
				UserID:              user.OwnerID(),
				ConversationHistory: []entity.Turn{},
				Status:              entity.SessionOngoing,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			persist = false
		default:
			release()
			return TurnResult{}, fmt.Errorf("load session %s: %w", id, err)
		}
		if sess.Completed() {
			release()
			return TurnResult{}, fmt.Errorf("%w: %s", diagnosis.ErrSessionCompleted, id)
		}
	default:
		return TurnResult{}, fmt.Errorf("unsupported request type %T", req)
	}
	defer release()

	raw, err := s.llm.Generate(ctx, llmclient.Request{
		Phase:    "equipment",
		System:   diagnosis.EquipmentSystemPrompt,
		Messages: s.messages(sess.ConversationHistory, message, image),
		JSON:     true,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("%w: %w", diagnosis.ErrBackendUnavailable, err)
	}
	reply, err := diagnosis.ParseEquipmentReply(raw)
	if err != nil {
		log.Printf("equipment: malformed reply session=%s err=%v", sess.ID, err)
		return TurnResult{}, err
	}

	sess.ConversationHistory = append(sess.ConversationHistory,
		entity.NewTextTurn(entity.TurnRoleUser, message),
		entity.NewTextTurn(entity.TurnRoleModel, reply.Raw),
	)
	if reply.IsTerminal() {
		d := reply.Terminal.Diagnosis
		sess.Status = entity.SessionCompleted
		sess.FinalDiagnosis = &d
	}
	sess.UpdatedAt = s.opts.Now().UTC()

	if persist {
		if err := s.save(ctx, sess, isNew); err != nil {
			return TurnResult{}, err
		}
	}
	return resultOf(sess, reply), nil
}

// ListForUser returns the user's sessions, most recently updated first.
// Anonymous callers always get an empty list.
func (s *Service) ListForUser(ctx context.Context, user entity.User) ([]entity.EquipmentSession, error) {
	if user.IsAnonymous() {
		return []entity.EquipmentSession{}, nil
	}
	list, err := s.store.ListEquipmentSessions(ctx, user.ID)
	if err != nil {
		if errors.Is(err, diagnosis.ErrStoreUnavailable) {
			log.Printf("equipment: store unavailable, returning empty history user=%s err=%v", user.ID, err)
			return []entity.EquipmentSession{}, nil
		}
		return nil, err
	}
	if list == nil {
		list = []entity.EquipmentSession{}
	}
	return list, nil
}

// Get returns the session, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*entity.EquipmentSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, diagnosis.Invalid("sessionId", "is required")
	}
	sess, err := s.store.GetEquipmentSession(ctx, id)
	switch {
	case err == nil:
		return &sess, nil
	case errors.Is(err, records.ErrNotFound):
		return nil, nil
	case errors.Is(err, diagnosis.ErrStoreUnavailable):
		log.Printf("equipment: store unavailable, session lookup skipped session=%s err=%v", id, err)
		return nil, nil
	}
	return nil, err
}

func (s *Service) save(ctx context.Context, sess entity.EquipmentSession, isNew bool) error {
	var err error
	if isNew {
		err = s.store.CreateEquipmentSession(ctx, sess)
	} else {
		err = s.store.UpdateEquipmentSession(ctx, sess)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, diagnosis.ErrStoreUnavailable) {
		log.Printf("equipment: warning: store unavailable, session not saved session=%s err=%v", sess.ID, err)
		return nil
	}
	return fmt.Errorf("save session %s: %w", sess.ID, err)
}

// messages replays the stored history and appends the new user turn.
func (s *Service) messages(history []entity.Turn, message string, image *llmclient.Image) []llmclient.Message {
	out := make([]llmclient.Message, 0, len(history)+1)
	questions := 0
	for _, t := range history {
		role := llmclient.RoleUser
		if t.Role == entity.TurnRoleModel {
			role = llmclient.RoleModel
			questions++
		}
		out = append(out, llmclient.Message{Role: role, Text: t.Text()})
	}

	text := message
	if s.opts.MaxQuestions > 0 && questions >= s.opts.MaxQuestions {
		text += "\n\n" + diagnosis.QuestionCapReminder
	}
	next := llmclient.Message{Role: llmclient.RoleUser, Text: text}
	if image != nil && len(image.Data) > 0 {
		next.Images = []llmclient.Image{*image}
	}
	return append(out, next)
}

func (s *Service) acquire(id string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return nil, fmt.Errorf("%w: %s", diagnosis.ErrSessionBusy, id)
	}
	s.inFlight[id] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}, nil
}

func resultOf(sess entity.EquipmentSession, reply diagnosis.EquipmentReply) TurnResult {
	out := TurnResult{
		SessionID: sess.ID,
		Stage:     reply.Stage,
		Session:   sess.Clone(),
	}
	if reply.Question != nil {
		out.NextQuestion = reply.Question.Text
	}
	if reply.Terminal != nil {
		d := reply.Terminal.Diagnosis
		rem := reply.Terminal.Remediation
		out.Diagnosis = &d
		out.Remediation = &rem
		out.PreventiveAdvice = reply.Terminal.PreventiveAdvice
	}
	return out
}
