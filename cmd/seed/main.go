package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/app"
	"github.com/loramulaku/LABcourse-sub002/internal/care"
	"github.com/loramulaku/LABcourse-sub002/internal/db"
	"github.com/loramulaku/LABcourse-sub002/internal/logger"
	"github.com/loramulaku/LABcourse-sub002/internal/store/pgstore"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log, err := logger.New("dev", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplySchema(ctx, pool); err != nil {
		log.Fatal("apply schema", zap.Error(err))
	}

	store := pgstore.New(pool)
	svc := app.NewServices(app.Deps{Store: store, Log: log}, app.Options{})

	if err := seedDoctors(ctx, pool, store, log, 50); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(ctx, store, log, 2000); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}
	if err := seedApplications(ctx, store, svc.Care, log, 25); err != nil {
		log.Fatal("seed applications", zap.Error(err))
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, store *pgstore.Store, log *zap.Logger, count int) error {
	log.Info("seeding doctors", zap.Int("count", count))

	for i := 0; i < count; i++ {
		u := care.User{
			ID:        uuid.New(),
			FullName:  "Dr. " + gofakeit.Name(),
			Email:     gofakeit.Email(),
			Role:      care.RoleDoctor,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return err
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO doctor_profiles (user_id, specialization, license_number, experience_years, consultation_fee, available, created_at)
			VALUES ($1, $2, $3, $4, $5, true, now())
			ON CONFLICT (user_id) DO NOTHING
		`, u.ID, specialties[gofakeit.Number(0, len(specialties)-1)], gofakeit.Regex(`[A-Z]{2}-[0-9]{6}`),
			gofakeit.Number(1, 35), int64(gofakeit.Number(10, 60))*10000)
		if err != nil {
			return err
		}
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, store *pgstore.Store, log *zap.Logger, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	for i := 0; i < count; i++ {
		err := store.CreateUser(ctx, care.User{
			ID:        uuid.New(),
			FullName:  gofakeit.Name(),
			Email:     gofakeit.Email(),
			Role:      care.RoleUser,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if (i+1)%500 == 0 {
			log.Info("patients seeded", zap.Int("done", i+1), zap.Int("total", count))
		}
	}

	return nil
}

// seedApplications creates applicants with pending doctor applications so the review
// flow has something to work on.
func seedApplications(ctx context.Context, store *pgstore.Store, svc *care.Service, log *zap.Logger, count int) error {
	log.Info("seeding doctor applications", zap.Int("count", count))

	for i := 0; i < count; i++ {
		applicant := uuid.New()
		err := store.CreateUser(ctx, care.User{
			ID:        applicant,
			FullName:  gofakeit.Name(),
			Email:     gofakeit.Email(),
			Role:      care.RoleUser,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		_, err = svc.SubmitApplication(ctx, care.NewApplication{
			ApplicantID:     applicant,
			LicenseNumber:   gofakeit.Regex(`[A-Z]{2}-[0-9]{6}`),
			Field:           specialties[gofakeit.Number(0, len(specialties)-1)],
			ExperienceYears: gofakeit.Number(0, 30),
		})
		if err != nil {
			return err
		}
	}

	log.Info("doctor applications seeded")
	return nil
}
