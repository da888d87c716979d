package rbac

import "strings"

type Role string
type Action string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

const (
	ActionSignup             Action = "signup"
	ActionViewAll            Action = "view_all"
	ActionExport             Action = "export"
	ActionNotify             Action = "notify"
	ActionRegistrationSearch Action = "registration_search"
	ActionRegistrationSave   Action = "registration_save"
	ActionHostBirthday       Action = "host_birthday"
	ActionVerifyPhone        Action = "verify_phone"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleMember:
		switch action {
		case ActionSignup, ActionRegistrationSearch, ActionHostBirthday, ActionVerifyPhone:
			return true
		}
		return false
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}

// Allowlist holds the emails that are granted the admin role.
type Allowlist struct {
	emails map[string]struct{}
}

func NewAllowlist(emails []string) Allowlist {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		if email = normalizeEmail(email); email != "" {
			set[email] = struct{}{}
		}
	}
	return Allowlist{emails: set}
}

func (a Allowlist) IsAdmin(email string) bool {
	_, ok := a.emails[normalizeEmail(email)]
	return ok && email != ""
}

func (a Allowlist) RoleFor(email string) Role {
	if a.IsAdmin(email) {
		return RoleAdmin
	}
	return RoleMember
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
