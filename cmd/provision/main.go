package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"parkpass/internal/auth"
	"parkpass/internal/config"
	"parkpass/internal/db"
	"parkpass/internal/models"
	"parkpass/internal/repo"
	"parkpass/internal/security"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	name := flag.String("name", "", "device display name")
	role := flag.String("role", "entry", "device role: entry, exit or admin")
	deviceId := flag.String("device-id", "", "device id (generated when empty)")
	staffName := flag.String("staff", "", "optional staff member to seed")
	staffPhone := flag.String("staff-phone", "", "staff login phone")
	staffPin := flag.String("staff-pin", "", "staff login pin")
	flag.Parse()

	if *name == "" {
		log.Fatal("-name is required")
	}
	r := models.DeviceRole(*role)
	if r != models.RoleEntry && r != models.RoleExit && r != models.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}
	id := *deviceId
	if id == "" {
		id = "device-" + uuid.NewString()
	}

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()
	if err := d.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	key := security.GenerateDeviceKey()
	devices := repo.NewDevicesRepo(d.Pool)
	err = devices.Install(ctx, models.DeviceConfig{
		DeviceId: id,
		Name:     *name,
		Role:     r,
		Key:      key,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *staffName != "" {
		if *staffPhone == "" || *staffPin == "" {
			log.Fatal("-staff-phone and -staff-pin are required with -staff")
		}
		hash, err := auth.HashPin(*staffPin)
		if err != nil {
			log.Fatal(err)
		}
		staff := repo.NewStaffRepo(d.Pool)
		err = staff.Create(ctx, models.Staff{
			StaffId:  "staff-" + uuid.NewString()[:8],
			Name:     *staffName,
			Phone:    *staffPhone,
			Role:     r,
			PinHash:  hash,
			IsActive: true,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("Seeded staff:", *staffName, "phone:", *staffPhone)
	}

	setup, _ := json.Marshal(map[string]string{
		"deviceId": id,
		"key":      key,
		"name":     *name,
		"role":     string(r),
	})
	fmt.Println("Installed device:", id, "role:", r)
	fmt.Println("Setup code:", base64.StdEncoding.EncodeToString(setup))
}
