package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanType is the subscription tier chosen at registration.
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// Normalize maps unknown or empty plan names to the free tier.
func (p PlanType) Normalize() PlanType {
	switch PlanType(strings.ToLower(strings.TrimSpace(string(p)))) {
	case PlanPro:
		return PlanPro
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// User is a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	Name         string    `db:"name"          json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	PlanType     PlanType  `db:"plan_type"     json:"plan_type"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// Principal is the authenticated identity a request acts as.
type Principal struct {
	UserID uuid.UUID
	Email  string
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}
