package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"shepsigrad-server/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	// A pooled second connection would see a different :memory: database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.Booking{},
		&models.PaymentAttempt{},
		&models.Notification{},
		&models.Message{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, role string) *models.User {
	t.Helper()
	user := models.User{
		FirstName: "Test",
		LastName:  role,
		Email:     fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()),
		Role:      role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return &user
}

func seedProperty(t *testing.T, db *gorm.DB, ownerID uint) *models.Property {
	t.Helper()
	property := models.Property{
		OwnerID:      ownerID,
		Title:        "Sea View Flat",
		City:         "Tuapse",
		NightlyPrice: 100,
		CleaningFee:  0,
		ServiceFee:   100,
		Currency:     "USD",
		MaxGuests:    4,
		MinNights:    1,
		IsActive:     true,
	}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("seeding property: %v", err)
	}
	return &property
}

// fakeGateway records calls and returns programmable outcomes.
type fakeGateway struct {
	mu sync.Mutex

	checkouts   int
	refunds     []string
	checkoutErr error
	refundErr   error
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, amount float64, currency, returnURL string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	g.checkouts++
	return &CheckoutSession{
		Reference:       fmt.Sprintf("ref-%d", g.checkouts),
		ConfirmationURL: "https://gateway.example/checkout/" + fmt.Sprint(g.checkouts),
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, reference)
	return nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type testStack struct {
	db      *gorm.DB
	hub     *Hub
	fanout  *Fanout
	gateway *fakeGateway
	engine  *LifecycleEngine
	orch    *PaymentOrchestrator

	tenant   *models.User
	landlord *models.User
	property *models.Property
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := newTestDB(t)
	hub := NewHub(db)
	fanout := NewFanout(db, hub)
	gateway := &fakeGateway{}
	engine := NewLifecycleEngine(db, fanout, gateway)
	orch := NewPaymentOrchestrator(db, engine, fanout, gateway)

	tenant := seedUser(t, db, "tenant")
	landlord := seedUser(t, db, "landlord")
	property := seedProperty(t, db, landlord.ID)

	return &testStack{
		db: db, hub: hub, fanout: fanout, gateway: gateway,
		engine: engine, orch: orch,
		tenant: tenant, landlord: landlord, property: property,
	}
}

func (s *testStack) createBooking(t *testing.T) *models.Booking {
	t.Helper()
	booking, err := s.engine.CreateBooking(CreateBookingInput{
		PropertyID:  s.property.ID,
		TenantID:    s.tenant.ID,
		CheckIn:     time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		GuestsCount: 2,
	})
	if err != nil {
		t.Fatalf("creating booking: %v", err)
	}
	return booking
}

func (s *testStack) tenantActor() Actor {
	return Actor{UserID: s.tenant.ID, Role: "tenant"}
}

func (s *testStack) ownerActor() Actor {
	return Actor{UserID: s.landlord.ID, Role: "landlord"}
}

func notificationCount(t *testing.T, db *gorm.DB, userID uint, eventType string) int64 {
	t.Helper()
	var count int64
	db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, eventType).
		Count(&count)
	return count
}
