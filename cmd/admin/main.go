// Package main provides admin management utilities for Inkwell.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/service"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin/main.go promote <user_id>          - Promote user to admin")
	fmt.Println("  go run ./cmd/admin/main.go demote <user_id>           - Demote user from admin")
	fmt.Println("  go run ./cmd/admin/main.go list-admins                - List all admins")
	fmt.Println("  go run ./cmd/admin/main.go list-users [page]          - List users, 20 per page")
	fmt.Println("  go run ./cmd/admin/main.go create-category <name>     - Create a category")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	switch os.Args[1] {
	case "promote", "demote":
		if len(os.Args) < 3 {
			usage()
		}
		setAdmin(ctx, users, repository.NewProfileRepository(db), os.Args[2], os.Args[1] == "promote")

	case "list-admins":
		listAdmins(ctx, users)

	case "list-users":
		page := 1
		if len(os.Args) > 2 {
			if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
				page = n
			}
		}
		listUsers(ctx, users, page)

	case "create-category":
		if len(os.Args) < 3 {
			usage()
		}
		// The operator running this tool is trusted as an administrator.
		categories := service.NewCategoryService(
			repository.NewCategoryRepository(db),
			repository.NewTagRepository(db),
			func(context.Context, uint) (bool, error) { return true, nil },
		)
		category, err := categories.CreateCategory(ctx, 0, strings.Join(os.Args[2:], " "))
		if err != nil {
			fail(err)
		}
		fmt.Printf("Created category %q (ID: %d)\n", category.Name, category.ID)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
	}
}

func setAdmin(ctx context.Context, users repository.UserRepository, profiles repository.ProfileRepository, rawID string, isAdmin bool) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		fmt.Printf("Invalid user ID %q\n", rawID)
		os.Exit(1)
	}

	user, err := users.GetByID(ctx, uint(id))
	if err != nil {
		fail(err)
	}
	if user.IsAdmin == isAdmin {
		fmt.Printf("User %s (ID: %d) already has admin=%t\n", user.Username, user.ID, isAdmin)
		return
	}

	if err := users.SetAdmin(ctx, user.ID, isAdmin); err != nil {
		fail(err)
	}
	if _, err := profiles.EnsureForUser(ctx, user.ID); err != nil {
		fail(err)
	}

	verb := "promoted"
	if !isAdmin {
		verb = "demoted"
	}
	fmt.Printf("Successfully %s %s (ID: %d)\n", verb, user.Username, user.ID)
}

func listAdmins(ctx context.Context, users repository.UserRepository) {
	admins, err := users.ListAdmins(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("Current Admins:")
	fmt.Println("─────────────────────────────────────")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
	fmt.Println("─────────────────────────────────────")
}

func listUsers(ctx context.Context, users repository.UserRepository, page int) {
	const perPage = 20
	list, err := users.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		log.Fatalf("Failed to fetch users: %v", err)
	}
	if len(list) == 0 {
		fmt.Printf("No users on page %d\n", page)
		return
	}
	for _, u := range list {
		role := ""
		if u.IsAdmin {
			role = " [admin]"
		}
		fmt.Printf("ID: %d | Username: %s | Email: %s%s\n", u.ID, u.Username, u.Email, role)
	}
}

// fail prints domain errors plainly and exits.
func fail(err error) {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code != models.CodeInternal {
		fmt.Println(appErr.Message)
		os.Exit(1)
	}
	log.Fatalf("Database error: %v", err)
}
