package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"medqueue/internal/queues"
	"medqueue/internal/shared/config"
	"medqueue/internal/shared/database"
	"medqueue/internal/users"

	"github.com/google/uuid"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting MedQueue Database Seeder...")

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	// Clean database
	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	// Seed data
	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in the correct order (respecting foreign key constraints)
func (s *Seeder) CleanDatabase() error {
	// Delete in reverse dependency order
	tables := []string{
		"queue_item_transitions",
		"queue_items",
		"queues",
		"users",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to defer constraints: %w", err)
	}

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	if err := tx.Exec("SET CONSTRAINTS ALL IMMEDIATE").Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to restore constraints: %w", err)
	}

	return tx.Commit().Error
}

// SeedAll seeds all required data
func (s *Seeder) SeedAll() error {
	departmentIDs := s.departmentIDs()

	seeded, err := s.SeedUsers(departmentIDs)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	queueIDs, err := s.SeedQueues(departmentIDs)
	if err != nil {
		return fmt.Errorf("failed to seed queues: %w", err)
	}

	if err := s.SeedQueueItems(queueIDs, seeded); err != nil {
		return fmt.Errorf("failed to seed queue items: %w", err)
	}

	return nil
}

// departmentIDs returns fixed department UUIDs so seeded data is stable
// across runs. Departments themselves live in the external hospital
// directory; the engine only stores their IDs.
func (s *Seeder) departmentIDs() map[string]uuid.UUID {
	return map[string]uuid.UUID{
		"general":    uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		"cardiology": uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		"pediatrics": uuid.MustParse("33333333-3333-3333-3333-333333333333"),
	}
}

type seededUsers struct {
	patients []users.User
	admins   map[string]users.User
}

// SeedUsers creates one admin per department, a core operator, a super user
// and a handful of patients.
func (s *Seeder) SeedUsers(departments map[string]uuid.UUID) (*seededUsers, error) {
	seeded := &seededUsers{admins: make(map[string]users.User)}

	for name, deptID := range departments {
		dept := deptID
		admin := users.User{
			ID:           uuid.New(),
			Username:     fmt.Sprintf("admin_%s", name),
			FullName:     fmt.Sprintf("%s desk admin", name),
			Role:         users.RoleAdmin,
			DepartmentID: &dept,
		}
		if err := s.db.PostgreSQL.Create(&admin).Error; err != nil {
			return nil, err
		}
		seeded.admins[name] = admin
		fmt.Printf("  Created admin: %s\n", admin.Username)
	}

	generalDept := departments["general"]
	core := users.User{
		ID:           uuid.New(),
		Username:     "core_operator",
		FullName:     "Core operator",
		Role:         users.RoleCore,
		DepartmentID: &generalDept,
	}
	if err := s.db.PostgreSQL.Create(&core).Error; err != nil {
		return nil, err
	}
	fmt.Printf("  Created core operator: %s\n", core.Username)

	super := users.User{
		ID:       uuid.New(),
		Username: "superuser",
		FullName: "Hospital superuser",
		Role:     users.RoleSuper,
	}
	if err := s.db.PostgreSQL.Create(&super).Error; err != nil {
		return nil, err
	}
	fmt.Printf("  Created super user: %s\n", super.Username)

	for i := 1; i <= 8; i++ {
		dept := departments["general"]
		patient := users.User{
			ID:           uuid.New(),
			Username:     fmt.Sprintf("patient%d", i),
			FullName:     fmt.Sprintf("Patient %d", i),
			Role:         users.RolePatient,
			DepartmentID: &dept,
		}
		if err := s.db.PostgreSQL.Create(&patient).Error; err != nil {
			return nil, err
		}
		seeded.patients = append(seeded.patients, patient)
	}
	fmt.Printf("  Created %d patients\n", len(seeded.patients))

	return seeded, nil
}

// SeedQueues creates one active queue per department plus one inactive
// queue for testing enrollment rejection.
func (s *Seeder) SeedQueues(departments map[string]uuid.UUID) (map[string]uuid.UUID, error) {
	queueIDs := make(map[string]uuid.UUID)

	names := map[string]string{
		"general":    "General consultation",
		"cardiology": "Cardiology consultation",
		"pediatrics": "Pediatric consultation",
	}

	for dept, deptID := range departments {
		queue := queues.Queue{
			ID:            uuid.New(),
			Name:          names[dept],
			DepartmentID:  deptID,
			Status:        "active",
			EstimatedTime: "15 min",
		}
		if err := s.db.PostgreSQL.Create(&queue).Error; err != nil {
			return nil, err
		}
		queueIDs[dept] = queue.ID
		fmt.Printf("  Created queue: %s\n", queue.Name)
	}

	closed := queues.Queue{
		ID:           uuid.New(),
		Name:         "Radiology (closed)",
		DepartmentID: departments["general"],
		Status:       "inactive",
	}
	if err := s.db.PostgreSQL.Create(&closed).Error; err != nil {
		return nil, err
	}
	queueIDs["radiology"] = closed.ID
	fmt.Printf("  Created inactive queue: %s\n", closed.Name)

	return queueIDs, nil
}

// SeedQueueItems enrolls the seeded patients into the general queue through
// the transactional enrollment path so numbers, ledger rows and counters
// come out exactly as production traffic would produce them.
func (s *Seeder) SeedQueueItems(queueIDs map[string]uuid.UUID, seeded *seededUsers) error {
	repo := queues.NewRepository(s.db.PostgreSQL, 3*time.Second)
	generalQueue := queueIDs["general"]
	admin := seeded.admins["general"]

	var itemIDs []uuid.UUID
	for _, patient := range seeded.patients {
		item, _, err := repo.Enroll(context.Background(), generalQueue, patient.ID, &admin.ID)
		if err != nil {
			return err
		}
		itemIDs = append(itemIDs, item.ID)
	}
	fmt.Printf("  Enrolled %d patients into the general queue\n", len(itemIDs))

	// Walk the first patient through a full serve cycle so the ledger and
	// auto-advance have visible history to poke at.
	if _, err := repo.ApplyTransition(context.Background(), itemIDs[0], queues.StatusInProgress, &admin.ID, "called in"); err != nil {
		return err
	}
	if _, err := repo.ApplyTransition(context.Background(), itemIDs[0], queues.StatusCompleted, &admin.ID, "consultation done"); err != nil {
		return err
	}
	fmt.Println("  Served first patient; auto-advance promoted the next")

	// One cancellation for error-path testing.
	patient := seeded.patients[len(seeded.patients)-1]
	last := itemIDs[len(itemIDs)-1]
	if _, err := repo.ApplyTransition(context.Background(), last, queues.StatusCancelled, &patient.ID, "cannot make it"); err != nil {
		return err
	}
	fmt.Println("  Cancelled last patient's entry")

	return nil
}
