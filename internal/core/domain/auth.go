package domain

import (
	"time"
)

// AdminSubject is the only subject the token authority issues tokens for.
const AdminSubject = "admin"

// AdminToken is a signed bearer credential and its expiry.
type AdminToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}
