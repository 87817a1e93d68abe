package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.ProviderProfile{},
		&dispatch.Job{}, &dispatch.LocationSample{}, &dispatch.ChatMessage{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db
}

type testSession struct {
	hub      *Hub
	svc      *dispatch.Service
	db       *gorm.DB
	jobID    string
	customer *Client
	provider *Client
}

// newTestSession builds a hub with a customer and a provider joined to one
// job's group. Clients have no underlying connection; the frame handlers
// never touch it.
func newTestSession(t *testing.T) *testSession {
	t.Helper()
	db := openTestDB(t)
	svc := dispatch.NewService(dispatch.NewRepo(db), nil, nil, 30*time.Second)
	hub := NewHub()

	customerUser := &models.User{Email: "c@example.com", Name: "Casey", PasswordHash: "x", Role: models.RoleCustomer}
	providerUser := &models.User{Email: "p@example.com", Name: "Pat", PasswordHash: "x", Role: models.RoleProvider}
	for _, u := range []*models.User{customerUser, providerUser} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if err := db.Create(&models.ProviderProfile{UserID: providerUser.ID}).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}

	job, err := svc.CreateJob(context.Background(), customerUser.ID, dispatch.CreateJobInput{Description: "dead battery"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	customer := NewClient(hub, svc, nil, job.ID, customerUser)
	provider := NewClient(hub, svc, nil, job.ID, providerUser)
	hub.Join(customer)
	hub.Join(provider)

	return &testSession{hub: hub, svc: svc, db: db, jobID: job.ID, customer: customer, provider: provider}
}

func recvFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case payload := <-c.send:
		var frame map[string]any
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame received")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLocationUpdate_MissingCoordinateDroppedSilently(t *testing.T) {
	s := newTestSession(t)

	s.customer.handleFrame([]byte(`{"type":"location_update","latitude":31.5}`))

	assertNoFrame(t, s.customer)
	assertNoFrame(t, s.provider)

	var cnt int64
	if err := s.db.Model(&dispatch.LocationSample{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("dropped frame must not store a sample, got %d", cnt)
	}
}

func TestLocationUpdate_BroadcastToGroupIncludingSender(t *testing.T) {
	s := newTestSession(t)

	s.provider.handleFrame([]byte(`{"type":"location_update","latitude":31.52,"longitude":74.35}`))

	for _, c := range []*Client{s.customer, s.provider} {
		frame := recvFrame(t, c)
		if frame["type"] != "location_update" {
			t.Fatalf("expected location_update, got %v", frame["type"])
		}
		if frame["sender_role"] != models.RoleProvider {
			t.Fatalf("expected provider sender, got %v", frame["sender_role"])
		}
		if frame["latitude"].(float64) != 31.52 || frame["longitude"].(float64) != 74.35 {
			t.Fatalf("coordinates mangled: %v", frame)
		}
		if frame["timestamp"] == nil {
			t.Fatalf("broadcast missing timestamp")
		}
	}

	// durable trail and availability record catch up asynchronously
	waitFor(t, "location sample", func() bool {
		var cnt int64
		s.db.Model(&dispatch.LocationSample{}).Where("job_id = ?", s.jobID).Count(&cnt)
		return cnt == 1
	})
	waitFor(t, "provider position", func() bool {
		var profile models.ProviderProfile
		if err := s.db.Where("user_id = ?", s.provider.user.ID).First(&profile).Error; err != nil {
			return false
		}
		return profile.CurrentLatitude != nil && *profile.CurrentLatitude == 31.52
	})
}

func TestChatMessage_EmptyTextDroppedSilently(t *testing.T) {
	s := newTestSession(t)

	s.customer.handleFrame([]byte(`{"type":"chat_message","text":""}`))

	assertNoFrame(t, s.customer)
	assertNoFrame(t, s.provider)

	var cnt int64
	if err := s.db.Model(&dispatch.ChatMessage{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("dropped chat must not be stored, got %d", cnt)
	}
}

func TestChatMessage_BroadcastRenderedToWholeGroup(t *testing.T) {
	s := newTestSession(t)

	s.customer.handleFrame([]byte(`{"type":"chat_message","text":"how far out are you?"}`))

	for _, c := range []*Client{s.customer, s.provider} {
		frame := recvFrame(t, c)
		if frame["type"] != "chat_message" {
			t.Fatalf("expected chat_message, got %v", frame["type"])
		}
		msg, ok := frame["message"].(map[string]any)
		if !ok {
			t.Fatalf("expected rendered message object, got %v", frame["message"])
		}
		if msg["text"] != "how far out are you?" {
			t.Fatalf("text mangled: %v", msg["text"])
		}
		if msg["sender_name"] != "Casey" || msg["sender_role"] != models.RoleCustomer {
			t.Fatalf("message missing sender identity: %v", msg)
		}
		if id, ok := msg["id"].(float64); !ok || id == 0 {
			t.Fatalf("frame must carry the stored row id, got %v", msg["id"])
		}
	}

	waitFor(t, "chat row", func() bool {
		var cnt int64
		s.db.Model(&dispatch.ChatMessage{}).Where("job_id = ?", s.jobID).Count(&cnt)
		return cnt == 1
	})
}

func TestBroadcast_SurvivesStorageFailure(t *testing.T) {
	s := newTestSession(t)

	// take the durable tables away entirely; delivery must not notice
	if err := s.db.Migrator().DropTable(&dispatch.LocationSample{}, &dispatch.ChatMessage{}); err != nil {
		t.Fatalf("drop tables: %v", err)
	}

	s.provider.handleFrame([]byte(`{"type":"location_update","latitude":31.52,"longitude":74.35}`))
	for _, c := range []*Client{s.customer, s.provider} {
		frame := recvFrame(t, c)
		if frame["type"] != "location_update" {
			t.Fatalf("expected location_update, got %v", frame["type"])
		}
	}

	s.customer.handleFrame([]byte(`{"type":"chat_message","text":"can you hear me?"}`))
	for _, c := range []*Client{s.customer, s.provider} {
		frame := recvFrame(t, c)
		if frame["type"] != "chat_message" {
			t.Fatalf("expected chat_message, got %v", frame["type"])
		}
		msg, ok := frame["message"].(map[string]any)
		if !ok || msg["text"] != "can you hear me?" {
			t.Fatalf("message mangled: %v", frame["message"])
		}
		// unsaved fallback, no row id
		if id, _ := msg["id"].(float64); id != 0 {
			t.Fatalf("unsaved message must not carry a row id, got %v", msg["id"])
		}
	}
}

func TestUnknownType_ErrorRepliesToSenderOnly(t *testing.T) {
	s := newTestSession(t)

	s.customer.handleFrame([]byte(`{"type":"make_coffee"}`))

	frame := recvFrame(t, s.customer)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", frame["type"])
	}
	if frame["message"] != "Invalid message type." {
		t.Fatalf("unexpected error message: %v", frame["message"])
	}

	assertNoFrame(t, s.provider)
}

func TestMalformedFrame_DroppedSilently(t *testing.T) {
	s := newTestSession(t)

	s.customer.handleFrame([]byte(`{not json`))

	assertNoFrame(t, s.customer)
	assertNoFrame(t, s.provider)
}

func TestLeave_RemovesOnlyThatConnection(t *testing.T) {
	s := newTestSession(t)

	if n := s.hub.GroupSize(s.jobID); n != 2 {
		t.Fatalf("expected group of 2, got %d", n)
	}

	s.hub.Leave(s.customer)

	if n := s.hub.GroupSize(s.jobID); n != 1 {
		t.Fatalf("expected group of 1 after leave, got %d", n)
	}

	// the remaining participant still receives broadcasts
	s.provider.handleFrame([]byte(`{"type":"chat_message","text":"still here"}`))
	frame := recvFrame(t, s.provider)
	if frame["type"] != "chat_message" {
		t.Fatalf("expected chat_message, got %v", frame["type"])
	}
	assertNoFrame(t, s.customer)

	// the job itself is untouched by a disconnect
	job, err := s.svc.GetJob(context.Background(), s.jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != dispatch.StatusPending {
		t.Fatalf("disconnect must not change job status, got %s", job.Status)
	}
}

func TestBroadcast_NoCrossJobInterference(t *testing.T) {
	s := newTestSession(t)

	otherJob, err := s.svc.CreateJob(context.Background(), s.customer.user.ID, dispatch.CreateJobInput{Description: "locked out"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	bystander := NewClient(s.hub, s.svc, nil, otherJob.ID, s.customer.user)
	s.hub.Join(bystander)

	s.provider.handleFrame([]byte(`{"type":"chat_message","text":"on my way"}`))

	recvFrame(t, s.customer)
	recvFrame(t, s.provider)
	assertNoFrame(t, bystander)
}
