package dispatch

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ali-irt/Karigar/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ListPendingSince returns unclaimed jobs created after cutoff, newest first.
func (r *Repo) ListPendingSince(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var jobs []Job
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at > ?", StatusPending, cutoff).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// AcceptJob performs the single-acceptance bind as one conditional UPDATE.
// Zero rows affected means the job was not claimable at that instant; the
// caller classifies why. Never read-then-write here.
func (r *Repo) AcceptJob(ctx context.Context, id string, providerID uint64, etaMinutes int, cutoff time.Time) (int64, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND provider_id IS NULL AND created_at > ?",
			id, StatusPending, cutoff).
		Updates(map[string]any{
			"status":      StatusAccepted,
			"provider_id": providerID,
			"eta_minutes": etaMinutes,
			"accepted_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *Repo) StartJob(ctx context.Context, id string, providerID uint64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND provider_id = ?", id, StatusAccepted, providerID).
		Updates(map[string]any{
			"status":     StatusInProgress,
			"started_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *Repo) CompleteJob(ctx context.Context, id string, providerID uint64, actualCost float64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND provider_id = ?", id, StatusInProgress, providerID).
		Updates(map[string]any{
			"status":       StatusCompleted,
			"actual_cost":  actualCost,
			"completed_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// CancelJob cancels from any still-active state.
func (r *Repo) CancelJob(ctx context.Context, id, reason, actorRole string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id,
			[]JobStatus{StatusPending, StatusAccepted, StatusInProgress}).
		Updates(map[string]any{
			"status":        StatusCancelled,
			"cancel_reason": reason,
			"cancelled_by":  actorRole,
		})
	return res.RowsAffected, res.Error
}

// CancelPendingJob is the sweeper's cancel: it re-checks status = pending at
// the moment of the update so a concurrent accept always wins or loses
// cleanly, never both.
func (r *Repo) CancelPendingJob(ctx context.Context, id, reason, actorRole string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":        StatusCancelled,
			"cancel_reason": reason,
			"cancelled_by":  actorRole,
		})
	return res.RowsAffected, res.Error
}

// ListExpiredPending returns jobs still pending past the acceptance window.
func (r *Repo) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]Job, error) {
	var jobs []Job
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", StatusPending, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repo) InsertLocationSample(ctx context.Context, s *LocationSample) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// ListLocationSamples returns the trail in DESC id order (newest -> oldest).
func (r *Repo) ListLocationSamples(ctx context.Context, jobID string, limit int) ([]LocationSample, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var samples []LocationSample
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *Repo) InsertChatMessage(ctx context.Context, m *ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListChatMessages returns messages in DESC id order (newest -> oldest).
func (r *Repo) ListChatMessages(ctx context.Context, jobID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []ChatMessage
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) EnsureProviderProfile(ctx context.Context, userID uint64) error {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&models.ProviderProfile{}).
		Where("user_id = ?", userID).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.ProviderProfile{UserID: userID}).Error
}

func (r *Repo) UpdateProviderPosition(ctx context.Context, userID uint64, lat, lon float64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ProviderProfile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"current_latitude":     lat,
			"current_longitude":    lon,
			"last_location_update": at,
		}).Error
}

func (r *Repo) SetProviderAvailability(ctx context.Context, userID uint64, available bool) error {
	return r.db.WithContext(ctx).Model(&models.ProviderProfile{}).
		Where("user_id = ?", userID).
		Update("is_available", available).Error
}

func (r *Repo) CreateNotification(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}
