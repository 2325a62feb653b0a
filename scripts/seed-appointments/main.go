package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

type SeedFile struct {
	Clinicians   []Clinician   `json:"clinicians"`
	Appointments []Appointment `json:"appointments"`
}

type Clinician struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Appointment is scheduled relative to the moment the seed runs.
type Appointment struct {
	ClinicianID   uuid.UUID `json:"clinician_id"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email"`
	OffsetMinutes int       `json:"offset_minutes"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-appointments <seed-file.json>")
		fmt.Println("Example: go run ./scripts/seed-appointments testdata/sample-appointments.json")
		os.Exit(1)
	}
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		fmt.Println("Error: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Printf("Error parsing JSON: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	now := time.Now().UTC().Truncate(time.Second)
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		for _, c := range seed.Clinicians {
			if _, err := tx.Exec(ctx, `
				INSERT INTO clinicians (id, name, email)
				VALUES ($1, $2, NULLIF($3, ''))
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = NOW()`,
				c.ID, c.Name, c.Email); err != nil {
				return fmt.Errorf("clinician %s: %w", c.Name, err)
			}
		}
		for _, a := range seed.Appointments {
			status := a.Status
			if status == "" {
				status = "confirmed"
			}
			scheduledAt := now.Add(time.Duration(a.OffsetMinutes) * time.Minute)
			id := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, patient_name, patient_email, clinician_id, scheduled_at, reason, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id, a.PatientName, a.PatientEmail, a.ClinicianID, scheduledAt, a.Reason, status); err != nil {
				return fmt.Errorf("appointment for %s: %w", a.PatientName, err)
			}
			fmt.Printf("  %s  %-20s %-10s %s\n", id, a.PatientName, status, scheduledAt.Format(time.RFC3339))
		}
		return nil
	})
	if err != nil {
		fmt.Printf("Error seeding: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nSeeded %d clinicians and %d appointments.\n", len(seed.Clinicians), len(seed.Appointments))
	fmt.Println("Appointments starting within the lead window are provisioned on the next tick.")
}
