package auth

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"opsdash/internal/db"
	"opsdash/internal/model"

	"github.com/go-ldap/ldap/v3"
	"github.com/oklog/ulid/v2"
)

// LDAPConfig holds directory connection settings.
type LDAPConfig struct {
	URL            string
	BaseDN         string
	UserDNTemplate string // fmt template with %s placeholders for username, base DN
	Timeout        time.Duration
}

// LDAPAuthenticator binds against a directory server with the supplied
// credentials and maintains a local shadow identity for each directory
// user (created on first login with an empty local credential, role
// re-synced when group membership drifts).
type LDAPAuthenticator struct {
	cfg   LDAPConfig
	users UserStore
}

func NewLDAPAuthenticator(cfg LDAPConfig, users UserStore) *LDAPAuthenticator {
	return &LDAPAuthenticator{cfg: cfg, users: users}
}

func (a *LDAPAuthenticator) Authenticate(ctx context.Context, username, password string) (model.User, error) {
	conn, err := ldap.DialURL(a.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: a.cfg.Timeout}))
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}
	defer conn.Close()
	conn.SetTimeout(a.cfg.Timeout)

	userDN := fmt.Sprintf(a.cfg.UserDNTemplate, username, a.cfg.BaseDN)
	if err := conn.Bind(userDN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return model.User{}, model.ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}

	search := ldap.NewSearchRequest(
		"ou=users,"+a.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(uid=%s)", ldap.EscapeFilter(username)),
		[]string{"uid", "mail", "cn", "displayName", "memberOf"},
		nil,
	)
	result, err := conn.Search(search)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}
	if len(result.Entries) == 0 {
		return model.User{}, model.ErrInvalidCredentials
	}
	entry := result.Entries[0]

	role := roleFromGroups(entry.GetAttributeValues("memberOf"))

	user, err := a.upsertShadowUser(ctx, username, entry, role)
	if err != nil {
		return model.User{}, err
	}

	if !user.IsActive {
		return model.User{}, model.ErrAccountDisabled
	}

	if err := a.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (a *LDAPAuthenticator) upsertShadowUser(ctx context.Context, username string, entry *ldap.Entry, role model.Role) (model.User, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !db.IsNoRows(err) {
			return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
		}

		email := entry.GetAttributeValue("mail")
		if email == "" {
			email = username + "@company.com"
		}
		fullName := entry.GetAttributeValue("cn")
		if fullName == "" {
			fullName = username
		}

		// No local credential for directory users
		user, err = a.users.CreateUser(ctx, db.CreateUserParams{
			ID:       ulid.Make().String(),
			Username: username,
			Email:    email,
			FullName: fullName,
			Role:     role,
		})
		if err != nil {
			return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
		}
		return user, nil
	}

	if user.Role != role {
		if _, err := a.users.UpdateUser(ctx, user.ID, model.UserPatch{Role: &role}, nil); err != nil {
			return model.User{}, fmt.Errorf("%w: %v", model.ErrAuthProvider, err)
		}
		user.Role = role
	}
	return user, nil
}

// roleFromGroups maps directory group membership to a role: any group
// name containing "admin" wins, then "leader"/"manager", else member.
func roleFromGroups(groups []string) model.Role {
	for _, g := range groups {
		if strings.Contains(strings.ToLower(g), "admin") {
			return model.RoleAdmin
		}
	}
	for _, g := range groups {
		lower := strings.ToLower(g)
		if strings.Contains(lower, "leader") || strings.Contains(lower, "manager") {
			return model.RoleLeader
		}
	}
	return model.RoleMember
}
