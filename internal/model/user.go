package model

import "strings"

// User is the request identity decoded from a JWT.
type User struct {
	ID      int64
	Email   string
	IsStaff bool
}

// IsAdmin reports whether the user may edit scanner config, manage the
// universe and call admin operations. adminEmail comes from server config
// and matches case-insensitively; staff users are always admins.
func (u User) IsAdmin(adminEmail string) bool {
	if u.IsStaff {
		return true
	}
	return adminEmail != "" && strings.EqualFold(u.Email, adminEmail)
}
