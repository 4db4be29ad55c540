package sourcerepo

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// scpLike matches git@host:owner/repo.git.
var scpLike = regexp.MustCompile(`^([A-Za-z0-9._-]+)@([^:/]+):(.+)$`)

// CloneURL is a validated, normalised repository location.
type CloneURL struct {
	Scheme string // https or ssh
	User   string
	Host   string // IDNA ASCII, lower case
	Port   string
	Path   string // without leading slash
}

// ParseCloneURL accepts https://, ssh:// and scp-like git@host:path URLs.
// The host is converted to its ASCII (punycode) form so that visually
// identical hosts compare equal.
func ParseCloneURL(raw string) (CloneURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CloneURL{}, fmt.Errorf("%w: url is required", shared.ErrValidation)
	}

	var c CloneURL
	if m := scpLike.FindStringSubmatch(raw); m != nil && !strings.Contains(raw, "://") {
		c = CloneURL{Scheme: "ssh", User: m[1], Host: m[2], Path: m[3]}
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return CloneURL{}, fmt.Errorf("%w: invalid url", shared.ErrValidation)
		}
		switch u.Scheme {
		case "https", "ssh":
		default:
			return CloneURL{}, fmt.Errorf("%w: url scheme must be https or ssh", shared.ErrValidation)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return CloneURL{}, fmt.Errorf("%w: url must not carry a query or fragment", shared.ErrValidation)
		}
		if _, hasPassword := u.User.Password(); hasPassword {
			return CloneURL{}, fmt.Errorf("%w: credentials must not be embedded in the url", shared.ErrValidation)
		}
		c = CloneURL{Scheme: u.Scheme, User: u.User.Username(), Host: u.Hostname(), Port: u.Port(), Path: u.Path}
	}

	host, err := idna.Lookup.ToASCII(strings.ToLower(c.Host))
	if err != nil || host == "" {
		return CloneURL{}, fmt.Errorf("%w: invalid host", shared.ErrValidation)
	}
	c.Host = host

	c.Path = strings.Trim(path.Clean("/"+c.Path), "/")
	if c.Path == "" || c.Path == "." {
		return CloneURL{}, fmt.Errorf("%w: url must include the repository path", shared.ErrValidation)
	}
	if c.Scheme == "https" {
		c.User = ""
	}
	return c, nil
}

// HostPort returns the host with the port when one was given.
func (c CloneURL) HostPort() string {
	if c.Port == "" {
		return c.Host
	}
	return c.Host + ":" + c.Port
}

// String renders the canonical form.
func (c CloneURL) String() string {
	if c.Scheme == "ssh" {
		user := c.User
		if user == "" {
			user = "git"
		}
		return fmt.Sprintf("ssh://%s@%s/%s", user, c.HostPort(), c.Path)
	}
	return fmt.Sprintf("https://%s/%s", c.HostPort(), c.Path)
}

// RepoName returns the last path element without a .git suffix.
func (c CloneURL) RepoName() string {
	return strings.TrimSuffix(path.Base(c.Path), ".git")
}

// FullName returns the path without a .git suffix, e.g. "owner/repo".
func (c CloneURL) FullName() string {
	return strings.TrimSuffix(c.Path, ".git")
}
