package sourcerepo

// Provider is the hosting service of a repository.
type Provider string

const (
	ProviderGitHub    Provider = "github"
	ProviderGitLab    Provider = "gitlab"
	ProviderBitbucket Provider = "bitbucket"
	ProviderGeneric   Provider = "generic"
)

// IsValid checks if the provider is supported.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGitHub, ProviderGitLab, ProviderBitbucket, ProviderGeneric:
		return true
	}
	return false
}

func (p Provider) String() string {
	return string(p)
}

// TokenUsername is the HTTP basic-auth user name the provider expects
// alongside an access token.
func (p Provider) TokenUsername() string {
	switch p {
	case ProviderGitLab:
		return "oauth2"
	case ProviderBitbucket:
		return "x-token-auth"
	default:
		return "x-access-token"
	}
}

// DetectProvider guesses the provider from a normalised host.
func DetectProvider(host string) Provider {
	switch host {
	case "github.com":
		return ProviderGitHub
	case "gitlab.com":
		return ProviderGitLab
	case "bitbucket.org":
		return ProviderBitbucket
	}
	return ProviderGeneric
}
