package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/sakif/dietcraft/internal/model"
)

// Identity is what an identity provider asserts about the person who just
// logged in. Any field may be empty if the provider did not return it; the
// account linking flow decides whether that is acceptable.
type Identity struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
}

// IdentityProvider is one external login option.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. AuthURL: redirect the browser to the provider with our client id, the
//     scopes and a random state value.
//  2. The user approves; the provider redirects back with a short-lived code.
//  3. Exchange: trade the code for an access token server-to-server (using
//     the client secret) and read the user's profile with it.
//
// The access token never reaches the browser.
type IdentityProvider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

var (
	_ IdentityProvider = (*GitHubProvider)(nil)
	_ IdentityProvider = (*GoogleProvider)(nil)
)

// =========================================================================
// GITHUB
// =========================================================================

// githubUser is the part of GET /user we read.
// https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"` // empty when the user hides it
}

// githubEmail is one entry of GET /user/emails.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider logs users in with GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// "Authorization callback URL" of the OAuth App exactly.
//
// Scopes:
//   - "read:user"  public profile (id, login, name)
//   - "user:email" the email list, needed when the profile email is hidden
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string { return model.ProviderGitHub }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for the GitHub identity. The display name falls back
// to the login, and a hidden profile email falls back to the primary
// verified address from /user/emails.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging GitHub code: %w", err)
	}
	client := p.config.Client(ctx, tok)

	var u githubUser
	if err := getJSON(ctx, client, p.apiBase+"/user", &u); err != nil {
		return nil, fmt.Errorf("auth: reading GitHub user: %w", err)
	}

	id := &Identity{
		Provider: model.ProviderGitHub,
		Email:    u.Email,
		Name:     u.Name,
	}
	if u.ID != 0 {
		id.ExternalID = strconv.FormatInt(u.ID, 10)
	}
	if id.Name == "" {
		id.Name = u.Login
	}

	if id.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, p.apiBase+"/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("auth: reading GitHub emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				id.Email = e.Email
				break
			}
		}
	}

	return id, nil
}

// =========================================================================
// GOOGLE
// =========================================================================

// googleUserInfo is the OpenID Connect userinfo response.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// GoogleProvider logs users in with Google.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider requesting the OpenID Connect
// scopes for subject, email and name.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

func (p *GoogleProvider) Name() string { return model.ProviderGoogle }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for the Google identity. An address Google has not
// verified is dropped, which the linking flow then reports as missing.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging Google code: %w", err)
	}

	var info googleUserInfo
	if err := getJSON(ctx, p.config.Client(ctx, tok), p.userInfoURL, &info); err != nil {
		return nil, fmt.Errorf("auth: reading Google userinfo: %w", err)
	}

	id := &Identity{
		Provider:   model.ProviderGoogle,
		ExternalID: info.Sub,
		Name:       info.Name,
	}
	if info.EmailVerified {
		id.Email = info.Email
	}
	return id, nil
}

// getJSON GETs url with client and decodes a 200 response into dst.
func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
