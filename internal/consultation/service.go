package consultation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-voice-agent/internal/catalog"
	"medical-voice-agent/internal/dialogue"
	"medical-voice-agent/internal/platform/lock"
	"medical-voice-agent/internal/platform/logger"
)

var (
	ErrSpeechUnavailable = errors.New("speech service not configured")
	ErrReportUnavailable = errors.New("report service not configured")
)

// Locker serializes turns of the same consultation across server instances.
// A turn whose lease was lost before saving is discarded.
type Locker interface {
	Obtain(ctx context.Context, key string) (*lock.Lease, error)
}

// Publisher announces finished consultations to other services.
type Publisher interface {
	PublishCompleted(ctx context.Context, c Consultation) error
}

// ReportService renders and delivers the doctor's report.
type ReportService interface {
	Render(c Consultation) ([]byte, error)
	SendDoctorReport(ctx context.Context, c Consultation) error
}

type TTSClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type STTClient interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type Service interface {
	CreateConsultation(ctx context.Context, patientID uuid.UUID) (*Consultation, string, error)
	GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ProcessUserText(ctx context.Context, id uuid.UUID, text string) (Reply, error)
	ProcessUserTextStream(ctx context.Context, id uuid.UUID, text string, events chan<- StreamEvent) error
	Reset(ctx context.Context, id uuid.UUID) (Reply, error)
	Report(ctx context.Context, id uuid.UUID) ([]byte, error)
	TranscribeAudio(ctx context.Context, audioData []byte) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
	// Close waits for background report delivery to finish.
	Close()
}

// Deps are the collaborators of the service. Catalog, Advisor and Locker are
// required; the rest may be nil.
type Deps struct {
	Catalog *catalog.Catalog
	Advisor dialogue.Advisor
	Locker  Locker

	Publisher Publisher
	Reports   ReportService
	TTS       TTSClient
	STT       STTClient

	// Dialogue options. A Picker set here is shared by concurrent turns and
	// must be stateless; otherwise each turn gets one seeded from PhraseSeed.
	Dialogue dialogue.Options
	PhraseSeed int64
	// BackgroundTimeout bounds report delivery and event publishing.
	BackgroundTimeout time.Duration
}

type service struct {
	repo Repository
	deps Deps
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewService(repo Repository, deps Deps) Service {
	if deps.BackgroundTimeout == 0 {
		deps.BackgroundTimeout = time.Minute
	}
	return &service{
		repo: repo,
		deps: deps,
		log:  logger.NewLogger("consultation"),
	}
}

func (s *service) engine(c *Consultation) *dialogue.Engine {
	opts := s.deps.Dialogue
	if opts.Picker == nil {
		opts.Picker = dialogue.NewPicker(s.deps.PhraseSeed)
	}
	log := s.log.With().Str("consultation_id", c.ID.String()).Logger()
	opts.Logger = &log
	return dialogue.Resume(s.deps.Catalog, s.deps.Advisor, c.Session, opts)
}

func (s *service) CreateConsultation(ctx context.Context, patientID uuid.UUID) (*Consultation, string, error) {
	c := &Consultation{
		ID:        uuid.New(),
		PatientID: patientID,
		History:   []Message{},
		Session:   dialogue.NewSession(),
	}
	greeting := s.engine(c).Greet()
	c.History = append(c.History, Message{Role: RoleAssistant, Content: greeting, Timestamp: time.Now().UTC()})

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, "", fmt.Errorf("save consultation: %w", err)
	}
	s.log.Info().Str("consultation_id", c.ID.String()).Msg("consultation created")
	return c, greeting, nil
}

func (s *service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

// ProcessUserText runs one dialogue turn under the consultation lock.
func (s *service) ProcessUserText(ctx context.Context, id uuid.UUID, text string) (Reply, error) {
	var reply Reply
	var diagnosed *Consultation

	err := s.withConsultation(ctx, id, func(ctx context.Context, c *Consultation) {
		before := c.Session.State
		e := s.engine(c)
		done, msg := e.Analyze(ctx, text)
		c.Session = e.Session()
		reopen(c)

		now := time.Now().UTC()
		c.History = append(c.History,
			Message{Role: RoleUser, Content: text, Timestamp: now},
			Message{Role: RoleAssistant, Content: msg, Timestamp: now},
		)
		reply = Reply{Text: msg, Done: done, State: c.Session.State}

		if before != dialogue.StateAwaitingFollowUp && c.Session.AwaitingFollowUp() {
			c.Diagnosis = c.Session.Diagnosis
			c.IsComplete = true
			snapshot := clone(*c)
			diagnosed = &snapshot
		}
	})
	if err != nil {
		return Reply{}, err
	}

	if diagnosed != nil {
		s.completed(*diagnosed)
	}
	return reply, nil
}

// Reset discards the dialogue state but keeps the history.
func (s *service) Reset(ctx context.Context, id uuid.UUID) (Reply, error) {
	var reply Reply
	err := s.withConsultation(ctx, id, func(_ context.Context, c *Consultation) {
		e := s.engine(c)
		msg := e.Restart()
		c.Session = e.Session()
		reopen(c)
		c.History = append(c.History, Message{Role: RoleAssistant, Content: msg, Timestamp: time.Now().UTC()})
		reply = Reply{Text: msg, State: c.Session.State}
	})
	return reply, err
}

// reopen clears the previous outcome once the dialogue starts over.
func reopen(c *Consultation) {
	if c.Session.State == dialogue.StateAwaitingMonolog {
		c.Diagnosis = ""
		c.IsComplete = false
	}
}

// withConsultation runs fn on the stored consultation and saves the result,
// all under the consultation lock. fn gets the lease context, which is
// cancelled if the lock is lost.
func (s *service) withConsultation(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, c *Consultation)) error {
	lease, err := s.deps.Locker.Obtain(ctx, "consultation:"+id.String())
	if err != nil {
		return fmt.Errorf("lock consultation: %w", err)
	}
	defer lease.Release()

	c, err := s.repo.GetByID(lease.Context(), id)
	if err != nil {
		return err
	}
	fn(lease.Context(), c)

	// Another turn may own the consultation by now; saving would drop it.
	if err := lease.Check(ctx); err != nil {
		return fmt.Errorf("consultation %s: %w", id, err)
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return fmt.Errorf("save consultation: %w", err)
	}
	return nil
}

// completed publishes the event and sends the doctor's report in the
// background, detached from the request context.
func (s *service) completed(c Consultation) {
	if s.deps.Publisher == nil && s.deps.Reports == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.BackgroundTimeout)
		defer cancel()
		log := s.log.With().Str("consultation_id", c.ID.String()).Logger()

		if s.deps.Publisher != nil {
			if err := s.deps.Publisher.PublishCompleted(ctx, c); err != nil {
				log.Error().Err(err).Msg("failed to publish completion event")
			}
		}
		if s.deps.Reports != nil {
			if err := s.deps.Reports.SendDoctorReport(ctx, c); err != nil {
				log.Error().Err(err).Msg("failed to send report")
			} else {
				log.Info().Msg("report sent")
			}
		}
	}()
}

func (s *service) Close() {
	s.wg.Wait()
}

func (s *service) ProcessUserTextStream(ctx context.Context, id uuid.UUID, text string, events chan<- StreamEvent) error {
	reply, err := s.ProcessUserText(ctx, id, text)
	if err != nil {
		return err
	}
	if !send(ctx, events, StreamEvent{Type: EventResponse, Data: reply.Text}) {
		return ctx.Err()
	}

	if s.deps.TTS != nil {
		audio, err := s.deps.TTS.Synthesize(ctx, reply.Text)
		if err != nil {
			s.log.Warn().Err(err).Msg("speech synthesis failed")
		} else if !send(ctx, events, StreamEvent{Type: EventAudio, Data: base64.StdEncoding.EncodeToString(audio)}) {
			return ctx.Err()
		}
	}

	if !send(ctx, events, StreamEvent{Type: EventDone, Data: strconv.FormatBool(reply.Done)}) {
		return ctx.Err()
	}
	return nil
}

func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *service) Report(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.deps.Reports == nil {
		return nil, ErrReportUnavailable
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.deps.Reports.Render(*c)
}

func (s *service) TranscribeAudio(ctx context.Context, audioData []byte) (string, error) {
	if s.deps.STT == nil {
		return "", ErrSpeechUnavailable
	}
	return s.deps.STT.Transcribe(ctx, audioData)
}

func (s *service) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if s.deps.TTS == nil {
		return nil, ErrSpeechUnavailable
	}
	return s.deps.TTS.Synthesize(ctx, text)
}
