package intake

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/ai"
	"github.com/spigell/hr-intake/internal/conversation"
	"github.com/spigell/hr-intake/internal/document"
	"github.com/spigell/hr-intake/internal/events"
	"github.com/spigell/hr-intake/internal/logger"
	"github.com/spigell/hr-intake/internal/profile"
	"github.com/spigell/hr-intake/internal/storage"
	"github.com/spigell/hr-intake/internal/utils"
)

const (
	ThreadName  = "HR Profile Session"
	DefaultUser = "hr_user"

	metaProfileContext = "profile_context"
	metaMessageType    = "message_type"

	previewLength = 120

	// DefaultSessionIdle is how long an unused session stays in memory.
	DefaultSessionIdle = 30 * time.Minute
)

// ThreadTags are attached to every new thread.
var ThreadTags = []string{"hr", "profile"}

//go:embed prompt.md
var SystemInstruction string

// Welcome opens every new session.
const Welcome = `Hello! I will help you build the profile of the ideal candidate for your vacancy.

We will go through these sections one by one:
1. Position: title, required experience and company field
2. Hard skills: professional and technical skills and tools
3. Soft skills: personal qualities and communication
4. Work conditions: format, salary and benefits

Let's start! Which position are you hiring for? Tell me the job title and how many years of experience the candidate should have.`

var (
	ErrInvalidSessionID  = errors.New("invalid session id")
	ErrProfileIncomplete = errors.New("profile is not complete")
	ErrEmptyMessage      = errors.New("message must not be empty")
)

// RowAppender writes one export row to the external table.
type RowAppender interface {
	AppendRow(ctx context.Context, columns []string) error
}

// EventPublisher announces exported profiles.
type EventPublisher interface {
	PublishProfileExported(ctx context.Context, event events.ProfileExported) error
}

// DocumentProcessor turns an uploaded file into prompt context.
type DocumentProcessor interface {
	Process(ctx context.Context, name string, data []byte) document.Result
}

// Deps are the collaborators of the Service. Store and Runtime are required.
type Deps struct {
	Store     storage.Store
	Runtime   ai.Runtime
	Exporter  RowAppender
	Publisher EventPublisher
	Documents DocumentProcessor
	Logger    *zap.Logger
}

// Service runs the intake conversation for any number of sessions.
// Turns of one session are serialized; different sessions run independently.
type Service struct {
	store     storage.Store
	runtime   ai.Runtime
	exporter  RowAppender
	publisher EventPublisher
	documents DocumentProcessor
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id   string
	mu   sync.Mutex
	conv *conversation.Context

	// lastUsed is guarded by Service.mu.
	lastUsed time.Time
}

// Attachment is a file sent along with a turn.
type Attachment struct {
	Name string
	Data []byte
}

// Turn is one inbound user event.
type Turn struct {
	Text       string
	Attachment *Attachment
}

// Reply is what the transport shows after a turn.
type Reply struct {
	SessionID      string        `json:"session_id"`
	Text           string        `json:"text,omitempty"`
	Stage          profile.Stage `json:"stage"`
	DocumentStatus string        `json:"document_status,omitempty"`
}

// Started describes a freshly opened session.
type Started struct {
	SessionID string        `json:"session_id"`
	Welcome   string        `json:"welcome"`
	Stage     profile.Stage `json:"stage"`
}

// Status is a read-only view of a session.
type Status struct {
	SessionID   string                    `json:"session_id"`
	Stage       profile.Stage             `json:"stage"`
	Summary     string                    `json:"summary"`
	Profile     *profile.CandidateProfile `json:"profile"`
	HasDocument bool                      `json:"has_document"`
}

func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Runtime == nil {
		return nil, errors.New("agent runtime is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Service{
		store:     deps.Store,
		runtime:   deps.Runtime,
		exporter:  deps.Exporter,
		publisher: deps.Publisher,
		documents: deps.Documents,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		sessions:  make(map[string]*session),
	}, nil
}

// StartSession opens a new thread for user and returns the welcome message.
func (s *Service) StartSession(ctx context.Context, user string) (Started, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		user = DefaultUser
	}

	sess := &session{id: s.newID(), conv: conversation.New()}
	log := logger.WithSession(s.logger, sess.id)

	thread := storage.Thread{
		ID:             sess.id,
		Name:           ThreadName,
		UserIdentifier: user,
		Tags:           append([]string(nil), ThreadTags...),
		Metadata:       storage.Metadata{},
	}
	if snapshot, err := sess.conv.Snapshot().Map(); err == nil {
		thread.Metadata[metaProfileContext] = snapshot
	}

	_, err := s.store.CreateThread(ctx, thread)
	logger.LogOperation(log, "create_thread", err)

	s.mu.Lock()
	sess.lastUsed = s.now()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Info("session started", zap.String("user", user))

	return Started{SessionID: sess.id, Welcome: Welcome, Stage: sess.conv.Stage()}, nil
}

// HandleTurn processes one user turn: it attaches the optional document,
// asks the agent runtime for a reply and persists both messages and the profile.
func (s *Service) HandleTurn(ctx context.Context, id string, turn Turn) (Reply, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return Reply{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	log := logger.WithSession(s.logger, sess.id)
	reply := Reply{SessionID: sess.id}

	text := strings.TrimSpace(turn.Text)
	if text == "" && turn.Attachment == nil {
		return Reply{}, ErrEmptyMessage
	}

	if turn.Attachment != nil {
		reply.DocumentStatus = s.processDocument(ctx, sess, *turn.Attachment)
		if text == "" {
			s.persistContext(ctx, sess, log)
			reply.Stage = sess.conv.Stage()
			return reply, nil
		}
	}

	prior := s.priorTurns(ctx, sess, log)

	log.Info("user message",
		zap.Int("length", utf8.RuneCountInString(text)),
		zap.String("preview", utils.TruncateForLog(text, previewLength)),
		zap.String("current_stage", sess.conv.Stage().String()),
	)
	s.saveMessage(ctx, sess, conversation.RoleUser, text, "save_user_message", log)

	output, err := s.runtime.Run(ctx, ai.Request{
		SystemInstruction: SystemInstruction,
		Prompt:            conversation.FormatForAgent(prior, text, sess.conv.Document),
		Tools:             s.tools(sess),
	})
	if err != nil {
		log.Error("agent run failed", zap.Error(err))
		// Tools may have changed the profile before the failure.
		s.persistContext(ctx, sess, log)
		return Reply{}, fmt.Errorf("run agent: %w", err)
	}

	log.Info("agent response",
		zap.Int("length", utf8.RuneCountInString(output)),
		zap.String("preview", utils.TruncateForLog(output, previewLength)),
		zap.String("current_stage", sess.conv.Stage().String()),
	)
	s.saveMessage(ctx, sess, conversation.RoleAssistant, output, "save_assistant_message", log)
	s.persistContext(ctx, sess, log)

	reply.Text = output
	reply.Stage = sess.conv.Stage()
	return reply, nil
}

// AttachDocument processes a file outside of a turn and keeps it as prompt context when accepted.
func (s *Service) AttachDocument(ctx context.Context, id string, attachment Attachment) (string, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	status := s.processDocument(ctx, sess, attachment)
	s.persistContext(ctx, sess, logger.WithSession(s.logger, sess.id))
	return status, nil
}

// Status returns the profile of the session and its describe_profile rendering.
// A session that is not live is read from storage without being registered,
// and nothing is written for an unknown one.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	key, err := parseSessionID(id)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return statusOf(key, s.restore(ctx, key, false)), nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return statusOf(sess.id, sess.conv), nil
}

func statusOf(id string, conv *conversation.Context) Status {
	return Status{
		SessionID:   id,
		Stage:       conv.Stage(),
		Summary:     profile.Describe(conv.Profile),
		Profile:     conv.Profile.Clone(),
		HasDocument: conv.HasDocument(),
	}
}

// History lists the stored messages of the session in creation order.
func (s *Service) History(ctx context.Context, id string) ([]storage.Message, error) {
	key, err := parseSessionID(id)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Export runs export_profile for the session.
func (s *Service) Export(ctx context.Context, id string) (ExportResult, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return ExportResult{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return s.exportProfile(ctx, sess), nil
}

// EndSession forgets the in-memory state. The stored snapshot is kept for resume.
func (s *Service) EndSession(id string) error {
	key, err := parseSessionID(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, live := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	logger.WithSession(s.logger, key).Info("session ended", zap.Bool("was_live", live))
	return nil
}

// ExpireIdle forgets sessions unused for longer than idle and returns how many
// were dropped. Sessions in the middle of a turn are kept.
func (s *Service) ExpireIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for key, sess := range s.sessions {
		if sess.lastUsed.After(cutoff) {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		delete(s.sessions, key)
		sess.mu.Unlock()
		expired++
	}
	return expired
}

// ExpireSessions calls ExpireIdle periodically until ctx is done.
func (s *Service) ExpireSessions(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	interval := idle / 4

	for {
		if err := utils.WaitFor(ctx, interval); err != nil {
			return
		}
		if n := s.ExpireIdle(idle); n > 0 {
			s.logger.Info("idle sessions expired", zap.Int("count", n), zap.Int("live", s.LiveSessions()))
		}
	}
}

// LiveSessions is the number of sessions held in memory.
func (s *Service) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func parseSessionID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return parsed.String(), nil
}

// lookup returns the live session, restoring it from storage when needed.
func (s *Service) lookup(ctx context.Context, id string) (*session, error) {
	key, err := parseSessionID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		sess.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	restored := &session{id: key, conv: s.restore(ctx, key, true)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		sess.lastUsed = s.now()
		return sess, nil
	}
	restored.lastUsed = s.now()
	s.sessions[key] = restored

	return restored, nil
}

// restore rebuilds the conversation from the thread snapshot. Any missing or
// unreadable state falls back to a fresh context; a missing thread is created
// only when create is set.
func (s *Service) restore(ctx context.Context, id string, create bool) *conversation.Context {
	log := logger.WithSession(s.logger, id)

	thread, err := s.store.GetThread(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		fresh := conversation.New()
		if !create {
			return fresh
		}
		log.Info("thread not found, starting a fresh profile")
		_, err := s.store.CreateThread(ctx, storage.Thread{
			ID:             id,
			Name:           ThreadName,
			UserIdentifier: DefaultUser,
			Tags:           append([]string(nil), ThreadTags...),
		})
		logger.LogOperation(log, "create_thread", err)
		return fresh
	}
	logger.LogOperation(log, "get_thread", err)
	if err != nil {
		return conversation.New()
	}

	raw, ok := thread.Metadata[metaProfileContext]
	if !ok {
		return conversation.New()
	}

	snapshot, err := conversation.SnapshotFromValue(raw)
	if err != nil {
		log.Warn("stored profile context is unreadable, starting a fresh profile", zap.Error(err))
		return conversation.New()
	}

	conv := conversation.Restore(snapshot)
	log.Info("session resumed", zap.String("current_stage", conv.Stage().String()))
	return conv
}

func (s *Service) processDocument(ctx context.Context, sess *session, attachment Attachment) string {
	if s.documents == nil {
		return "Document processing is not available."
	}

	res := s.documents.Process(ctx, attachment.Name, attachment.Data)
	if res.Accepted {
		sess.conv.AttachDocument(res.Text)
	}
	return res.Status
}

func (s *Service) priorTurns(ctx context.Context, sess *session, log *zap.Logger) []conversation.Turn {
	messages, err := s.store.ListMessages(ctx, sess.id)
	if err != nil {
		logger.LogOperation(log, "list_messages", err)
		return nil
	}

	turns := make([]conversation.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, conversation.Turn{Role: conversation.Role(msg.Role), Content: msg.Content})
	}
	return turns
}

func (s *Service) saveMessage(ctx context.Context, sess *session, role conversation.Role, content, operation string, log *zap.Logger) {
	metadata := storage.Metadata{metaMessageType: string(role)}
	if snapshot, err := sess.conv.Snapshot().Map(); err == nil {
		metadata[metaProfileContext] = snapshot
	}

	_, err := s.store.CreateMessage(ctx, storage.Message{
		ThreadID: sess.id,
		Role:     string(role),
		Content:  content,
		Metadata: metadata,
	})
	logger.LogOperation(log, operation, err)
}

func (s *Service) persistContext(ctx context.Context, sess *session, log *zap.Logger) {
	snapshot, err := sess.conv.Snapshot().Map()
	if err == nil {
		err = s.store.UpdateThread(ctx, sess.id, storage.Metadata{metaProfileContext: snapshot})
	}
	logger.LogOperation(log, "update_thread", err)
}
