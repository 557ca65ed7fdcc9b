package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ErrInvalidCredentials is returned when the directory rejects the
// username/password pair. Anything else is a directory fault.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is a directory account.
type User struct {
	Username string
	FullName string
	Email    string
	Groups   []string
}

// Directory authenticates users and resolves their group membership.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// LDAPDirectory authenticates against Active Directory by binding as
// the user themselves, then reading their entry for groups.
type LDAPDirectory struct {
	server string
	domain string
	logger *slog.Logger
}

func NewLDAPDirectory(server, domain string, logger *slog.Logger) *LDAPDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &LDAPDirectory{server: server, domain: domain, logger: logger}
}

func (d *LDAPDirectory) Authenticate(ctx context.Context, username, password string) (*User, error) {
	conn, err := ldap.DialURL(d.server)
	if err != nil {
		return nil, fmt.Errorf("directory unreachable: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	userDN := username + "@" + d.domain
	if err := conn.Bind(userDN, password); err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultInvalidCredentials {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("directory bind failed: %w", err)
	}

	req := ldap.NewSearchRequest(
		baseDN(d.domain),
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(username)),
		[]string{"memberOf", "displayName", "mail"},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	if len(result.Entries) == 0 {
		d.logger.Warn("authenticated user has no directory entry", "username", username)
		return nil, ErrInvalidCredentials
	}

	entry := result.Entries[0]
	return &User{
		Username: username,
		FullName: entry.GetAttributeValue("displayName"),
		Email:    entry.GetAttributeValue("mail"),
		Groups:   groupNames(entry.GetAttributeValues("memberOf")),
	}, nil
}

// baseDN turns "company.local" into "DC=company,DC=local".
func baseDN(domain string) string {
	parts := strings.Split(domain, ".")
	for i, p := range parts {
		parts[i] = "DC=" + p
	}
	return strings.Join(parts, ",")
}

// groupNames extracts the leading CN value from each group DN, so
// "CN=Engineers,OU=Groups,DC=company,DC=local" becomes "Engineers".
func groupNames(memberOf []string) []string {
	groups := make([]string, 0, len(memberOf))
	for _, dn := range memberOf {
		first, _, _ := strings.Cut(dn, ",")
		if _, value, ok := strings.Cut(first, "="); ok && value != "" {
			groups = append(groups, value)
		}
	}
	return groups
}
