package users

import (
	"context"
	"fmt"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/pkg"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@example.com"

	generatedPasswordLength = 16
)

// EnsureDefaultAdmin creates the initial admin account when the user
// store is empty, so a fresh deployment is not locked out of the admin
// surface. With an empty password a random one is generated and logged
// once, at startup.
func EnsureDefaultAdmin(ctx context.Context, repo usersRepo, password string) error {
	count, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	generated := false
	if password == "" {
		password, err = pkg.GenerateRandomString(generatedPasswordLength)
		if err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		generated = true
	}

	passwordHash, err := pkg.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin, err := repo.Add(ctx, User{
		Email:        DefaultAdminEmail,
		Username:     DefaultAdminUsername,
		PasswordHash: passwordHash,
		FullName:     "Administrator",
		Role:         auth.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("add default admin: %w", err)
	}

	if generated {
		log.Warnf("created default admin [%s] with generated password: %s", admin.Username, password)
	} else {
		log.Infof("created default admin user: %s", admin.Username)
	}
	return nil
}
