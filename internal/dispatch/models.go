package dispatch

import "time"

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusAccepted   JobStatus = "accepted"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

// Job is a customer's service request and its lifecycle record.
// ProviderID is set exactly once, by the accept conditional update, and is
// non-null iff status is accepted, in_progress or completed.
type Job struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"` // ULID length
	CustomerID uint64    `gorm:"index;not null" json:"customer_id"`
	ProviderID *uint64   `gorm:"index" json:"provider_id"`
	Status     JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	Description    string   `gorm:"type:text" json:"description"`
	ServiceAddress string   `gorm:"type:varchar(512)" json:"service_address"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`

	EtaMinutes *int     `json:"eta_minutes"`
	ActualCost *float64 `json:"actual_cost"`

	CancelReason *string `gorm:"type:text" json:"cancel_reason"`
	CancelledBy  *string `gorm:"type:varchar(16)" json:"cancelled_by"` // role of the cancelling actor

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"-"`
	AcceptedAt  *time.Time `json:"accepted_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (Job) TableName() string { return "jobs" }

// LocationSample is one row of the append-only position trail for a job.
type LocationSample struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID      string    `gorm:"size:26;index;not null" json:"job_id"`
	AuthorID   uint64    `gorm:"not null" json:"author_id"`
	AuthorRole string    `gorm:"type:varchar(16);not null" json:"author_role"`
	Latitude   float64   `gorm:"not null" json:"latitude"`
	Longitude  float64   `gorm:"not null" json:"longitude"`
	CreatedAt  time.Time `json:"created_at"`
}

func (LocationSample) TableName() string { return "location_samples" }

// ChatMessage rows exist only to back the readback API; delivery happens on
// the live broadcast.
type ChatMessage struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID      string    `gorm:"size:26;index;not null" json:"job_id"`
	SenderID   uint64    `gorm:"not null" json:"sender_id"`
	SenderName string    `gorm:"type:varchar(128);not null" json:"sender_name"`
	SenderRole string    `gorm:"type:varchar(16);not null" json:"sender_role"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// Notification is written by the event worker for the counterparty of a
// transition, never by the request path.
type Notification struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	JobID     string    `gorm:"size:26;index;not null" json:"job_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// JobEvent is the message published on every successful transition.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Event     string    `json:"event"` // created|accepted|started|completed|cancelled
	ActorID   uint64    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Status    JobStatus `json:"status"`
	At        time.Time `json:"at"`
}
