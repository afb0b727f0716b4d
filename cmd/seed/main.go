package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solacecare/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAdmin(context.Background(), pool); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	providerIDs, err := seedCareProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed care providers: %v", err)
	}
	if err := seedUsers(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed availability: %v", err)
	}

	log.Println("seed complete")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO identities (id, role, is_active, created_at, updated_at)
		VALUES ($1, 'admin', true, now(), now())
	`, uuid.New())
	return err
}

func seedCareProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d care providers", count)

	specialties := []string{
		"Clinical Psychology",
		"Psychiatry",
		"Counselling",
		"Family Therapy",
		"Addiction Support",
		"Trauma Therapy",
		"Child Psychology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)

		_, err := tx.Exec(ctx, `
			INSERT INTO identities (id, role, is_active, created_at, updated_at)
			VALUES ($1, 'care_provider', true, now(), now())
		`, id)
		if err != nil {
			return nil, err
		}

		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		bio := gofakeit.Paragraph(1, 3, 12, " ")
		rate := gofakeit.Number(6000, 25000)

		_, err = tx.Exec(ctx, `
			INSERT INTO care_provider_profiles (id, identity_id, specialty, bio, hourly_rate_cents, accepting_clients, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, true, now(), now())
		`, uuid.New(), id, specialty, bio, rate)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("care providers seeded")
	return ids, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d users", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO identities (id, role, is_active, created_at, updated_at)
				VALUES ($1, 'user', true, now(), now())
			`, uuid.New())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("users seeded: %d/%d", end, count)
	}

	log.Println("users seeded")
	return nil
}

// seedAvailability gives every provider a weekly weekday window on a
// few random days, e.g. Tuesdays 09:00-17:00 for the next half year.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding availability for %d care providers", len(providerIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	weekStart := time.Now().UTC().Truncate(24 * time.Hour)
	validUntil := weekStart.AddDate(0, 6, 0)

	for _, providerID := range providerIDs {
		offsets := []int{1, 2, 3, 4, 5, 6, 7}
		gofakeit.ShuffleInts(offsets)
		days := gofakeit.Number(2, 4)
		for _, dayOffset := range offsets[:days] {
			startHour := gofakeit.Number(8, 11)
			endHour := startHour + gofakeit.Number(4, 8)

			day := weekStart.AddDate(0, 0, dayOffset)
			start := day.Add(time.Duration(startHour) * time.Hour)
			end := day.Add(time.Duration(endHour) * time.Hour)

			_, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (id, care_provider_id, start_time, end_time, weekly, valid_from, valid_until, created_at)
				VALUES ($1, $2, $3, $4, true, $3, $5, now())
			`, uuid.New(), providerID, start, end, validUntil)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("availability seeded")
	return nil
}
