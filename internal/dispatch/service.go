package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/ali-irt/Karigar/internal/common"
	"github.com/ali-irt/Karigar/internal/models"
)

// EventPublisher receives one JobEvent per successful transition. Publishing
// is best-effort: a failure is logged and never fails the transition.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev JobEvent) error
}

// PositionCache mirrors a provider's live position for the discovery read
// path. Best-effort, same as event publishing.
type PositionCache interface {
	SetProviderPosition(ctx context.Context, userID uint64, lat, lon float64) error
}

type Service struct {
	repo         *Repo
	events       EventPublisher
	positions    PositionCache
	acceptWindow time.Duration
}

func NewService(repo *Repo, events EventPublisher, positions PositionCache, acceptWindow time.Duration) *Service {
	if acceptWindow <= 0 {
		acceptWindow = 30 * time.Second
	}
	return &Service{repo: repo, events: events, positions: positions, acceptWindow: acceptWindow}
}

func (s *Service) AcceptWindow() time.Duration { return s.acceptWindow }

func (s *Service) emit(ctx context.Context, ev JobEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJobEvent(ctx, ev); err != nil {
		log.Printf("publish job event job=%s event=%s err=%v", ev.JobID, ev.Event, err)
	}
}

type CreateJobInput struct {
	Description    string
	ServiceAddress string
	Latitude       *float64
	Longitude      *float64
}

func (s *Service) CreateJob(ctx context.Context, customerID uint64, in CreateJobInput) (*Job, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:             id,
		CustomerID:     customerID,
		Status:         StatusPending,
		Description:    in.Description,
		ServiceAddress: in.ServiceAddress,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.emit(ctx, JobEvent{
		JobID: job.ID, Event: "created",
		ActorID: customerID, ActorRole: models.RoleCustomer,
		Status: StatusPending, At: time.Now(),
	})
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// ListAvailable returns pending jobs still inside the acceptance window.
func (s *Service) ListAvailable(ctx context.Context) ([]Job, error) {
	return s.repo.ListPendingSince(ctx, time.Now().Add(-s.acceptWindow))
}

// Accept binds providerID to the job, or returns *RejectedError with a
// distinct reason. Safe under arbitrary concurrent callers: the bind is a
// single conditional UPDATE and zero rows affected is a rejection, never a
// partial success.
func (s *Service) Accept(ctx context.Context, jobID string, providerID uint64, etaMinutes int) (*Job, error) {
	if etaMinutes < 1 || etaMinutes > 180 {
		return nil, ErrInvalidETA
	}

	cutoff := time.Now().Add(-s.acceptWindow)
	rows, err := s.repo.AcceptJob(ctx, jobID, providerID, etaMinutes, cutoff)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		job, err := s.repo.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch {
		case job.ProviderID != nil:
			return nil, &RejectedError{Reason: RejectAlreadyBound}
		case job.Status != StatusPending:
			return nil, &RejectedError{Reason: RejectNotPending}
		default:
			return nil, &RejectedError{Reason: RejectWindowExpired}
		}
	}

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, JobEvent{
		JobID: job.ID, Event: "accepted",
		ActorID: providerID, ActorRole: models.RoleProvider,
		Status: StatusAccepted, At: time.Now(),
	})
	return job, nil
}

// Start moves accepted -> in_progress. Only the bound provider may start;
// if no provider is bound yet the failure is a state conflict, not an
// authorization one (there is no binding to violate).
func (s *Service) Start(ctx context.Context, jobID string, providerID uint64) (*Job, error) {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProviderID != nil && *job.ProviderID != providerID {
		return nil, ErrNotParticipant
	}

	rows, err := s.repo.StartJob(ctx, jobID, providerID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := s.repo.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, &StateConflictError{Current: current.Status, Requested: StatusInProgress}
	}

	job, err = s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, JobEvent{
		JobID: job.ID, Event: "started",
		ActorID: providerID, ActorRole: models.RoleProvider,
		Status: StatusInProgress, At: time.Now(),
	})
	return job, nil
}

// Complete moves in_progress -> completed and records the actual cost.
func (s *Service) Complete(ctx context.Context, jobID string, providerID uint64, actualCost float64) (*Job, error) {
	if actualCost <= 0 {
		return nil, ErrInvalidCost
	}

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProviderID != nil && *job.ProviderID != providerID {
		return nil, ErrNotParticipant
	}

	rows, err := s.repo.CompleteJob(ctx, jobID, providerID, actualCost)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := s.repo.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, &StateConflictError{Current: current.Status, Requested: StatusCompleted}
	}

	job, err = s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, JobEvent{
		JobID: job.ID, Event: "completed",
		ActorID: providerID, ActorRole: models.RoleProvider,
		Status: StatusCompleted, At: time.Now(),
	})
	return job, nil
}

// Cancel cancels an active job. Allowed for the customer, the bound
// provider, or an admin.
func (s *Service) Cancel(ctx context.Context, jobID string, actorID uint64, actorRole, reason string) (*Job, error) {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(job, actorID, actorRole) {
		return nil, ErrNotParticipant
	}

	rows, err := s.repo.CancelJob(ctx, jobID, reason, actorRole)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := s.repo.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return nil, &StateConflictError{Current: current.Status, Requested: StatusCancelled}
	}

	job, err = s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, JobEvent{
		JobID: job.ID, Event: "cancelled",
		ActorID: actorID, ActorRole: actorRole,
		Status: StatusCancelled, At: time.Now(),
	})
	return job, nil
}

func isParticipant(job *Job, actorID uint64, actorRole string) bool {
	if actorRole == models.RoleAdmin {
		return true
	}
	if job.CustomerID == actorID {
		return true
	}
	return job.ProviderID != nil && *job.ProviderID == actorID
}

// IsParticipant reports whether the actor may read or join this job.
func (s *Service) IsParticipant(job *Job, actorID uint64, actorRole string) bool {
	return isParticipant(job, actorID, actorRole)
}

// SweepExpired retires every job still pending past the acceptance window.
// Each cancel re-checks status = pending inside the UPDATE, so concurrent
// sweeps or a racing accept never double-cancel. Fail-soft per item.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.acceptWindow)
	expired, err := s.repo.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	retired := 0
	for _, job := range expired {
		rows, err := s.repo.CancelPendingJob(ctx, job.ID, "acceptance window expired", "system")
		if err != nil {
			log.Printf("sweep cancel job=%s err=%v", job.ID, err)
			continue
		}
		if rows == 0 {
			// claimed or cancelled since the listing; nothing to do
			continue
		}
		retired++
		s.emit(ctx, JobEvent{
			JobID: job.ID, Event: "cancelled",
			ActorRole: "system",
			Status:    StatusCancelled, At: time.Now(),
		})
	}
	return retired, nil
}

// RecordLocation appends a sample and, for provider pings, refreshes the
// availability record and the live position mirror.
func (s *Service) RecordLocation(ctx context.Context, jobID string, authorID uint64, authorRole string, lat, lon float64) (*LocationSample, error) {
	sample := &LocationSample{
		JobID:      jobID,
		AuthorID:   authorID,
		AuthorRole: authorRole,
		Latitude:   lat,
		Longitude:  lon,
	}
	if err := s.repo.InsertLocationSample(ctx, sample); err != nil {
		return nil, err
	}

	if authorRole == models.RoleProvider {
		if err := s.repo.UpdateProviderPosition(ctx, authorID, lat, lon, time.Now()); err != nil {
			log.Printf("update provider position user=%d err=%v", authorID, err)
		}
		if s.positions != nil {
			if err := s.positions.SetProviderPosition(ctx, authorID, lat, lon); err != nil {
				log.Printf("mirror provider position user=%d err=%v", authorID, err)
			}
		}
	}
	return sample, nil
}

// SaveChatMessage persists one chat message for the readback API.
func (s *Service) SaveChatMessage(ctx context.Context, jobID string, sender *models.User, text string) (*ChatMessage, error) {
	msg := &ChatMessage{
		JobID:      jobID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Text:       text,
	}
	if err := s.repo.InsertChatMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) ListChatMessages(ctx context.Context, jobID string, limit int) ([]ChatMessage, error) {
	return s.repo.ListChatMessages(ctx, jobID, limit)
}

func (s *Service) ListLocationSamples(ctx context.Context, jobID string, limit int) ([]LocationSample, error) {
	return s.repo.ListLocationSamples(ctx, jobID, limit)
}

func (s *Service) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) SetProviderAvailability(ctx context.Context, providerID uint64, available bool) error {
	if err := s.repo.EnsureProviderProfile(ctx, providerID); err != nil {
		return err
	}
	return s.repo.SetProviderAvailability(ctx, providerID, available)
}
