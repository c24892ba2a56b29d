package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/noah-isme/hrms-api/internal/models"
	"github.com/noah-isme/hrms-api/internal/repository"
	"github.com/noah-isme/hrms-api/internal/service"
	"github.com/noah-isme/hrms-api/pkg/config"
	"github.com/noah-isme/hrms-api/pkg/database"
)

const actionCreateUser = "create-user"

func main() {
	var (
		migrationsDir = flag.String("dir", "", "directory containing migration files (defaults to MIGRATIONS_DIR)")
		email         = flag.String("email", "", "create-user: login email")
		password      = flag.String("password", "", "create-user: initial password")
		fullName      = flag.String("name", "", "create-user: full name")
		role          = flag.String("role", string(models.RoleEmployee), "create-user: EMPLOYEE or HR")
	)
	flag.Parse()

	action := database.MigrateUp
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if action == actionCreateUser {
		if err := createUser(cfg, *email, *password, *fullName, *role); err != nil {
			log.Fatalf("create-user failed: %v", err)
		}
		log.Printf("user %s created", *email)
		return
	}

	dir := *migrationsDir
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	result, err := database.RunMigration(action, dir, cfg.Database.URL())
	if err != nil {
		log.Fatalf("migration %s failed: %v", action, err)
	}
	if !result.Applied {
		log.Printf("migration %s completed, no migration applied", action)
		return
	}
	log.Printf("migration %s completed: version=%d dirty=%t", action, result.Version, result.Dirty)
}

func createUser(cfg *config.Config, email, password, fullName, role string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || strings.TrimSpace(fullName) == "" {
		return fmt.Errorf("-email, -password and -name are required")
	}
	userRole := models.UserRole(strings.ToUpper(strings.TrimSpace(role)))
	if userRole != models.RoleEmployee && userRole != models.RoleHR {
		return fmt.Errorf("unsupported role %q", role)
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return repository.NewUserRepository(db).Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         userRole,
		Active:       true,
	})
}
