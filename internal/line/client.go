package line

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAuthorizeURL = "https://access.line.me/oauth2/v2.1/authorize"
	defaultTokenURL     = "https://api.line.me/oauth2/v2.1/token"
	defaultVerifyURL    = "https://api.line.me/oauth2/v2.1/verify"
	defaultProfileURL   = "https://api.line.me/v2/profile"
)

// Config guarda credenciales del canal LINE Login.
type Config struct {
	ChannelID     string
	ChannelSecret string
	RedirectURL   string

	// URLs sobreescribibles para tests.
	AuthorizeURL string
	TokenURL     string
	VerifyURL    string
	ProfileURL   string
}

// Profile es la identidad externa que entrega LINE tras el callback.
type Profile struct {
	UserID      string
	DisplayName string
	PictureURL  string
	Email       string
}

// Client implementa el flujo LINE Login v2.1 (authorize, token, profile).
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(config Config) *Client {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	if config.VerifyURL == "" {
		config.VerifyURL = defaultVerifyURL
	}
	if config.ProfileURL == "" {
		config.ProfileURL = defaultProfileURL
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginURL arma la URL de autorización con el state entregado.
func (c *Client) LoginURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.config.ChannelID},
		"redirect_uri":  {c.config.RedirectURL},
		"state":         {state},
		"scope":         {"profile openid email"},
	}
	return c.config.AuthorizeURL + "?" + params.Encode()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

type profileResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

type verifyResponse struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

// ExchangeCode cambia el authorization code por tokens y resuelve el perfil.
// El email solo llega si el canal tiene el permiso de email y el usuario lo
// concedió; en ese caso viene en los claims del id_token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Profile, error) {
	token, err := c.exchangeToken(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchange token: %w", err)
	}

	profile, err := c.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	result := Profile{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		PictureURL:  profile.PictureURL,
	}

	if token.IDToken != "" {
		claims, err := c.verifyIDToken(ctx, token.IDToken)
		if err == nil {
			result.Email = claims.Email
		}
	}
	return result, nil
}

func (c *Client) exchangeToken(ctx context.Context, code string) (*tokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
		"client_id":     {c.config.ChannelID},
		"client_secret": {c.config.ChannelSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access token")
	}
	return &token, nil
}

func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*profileResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("profile endpoint status %d: %s", resp.StatusCode, body)
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	if profile.UserID == "" {
		return nil, fmt.Errorf("profile endpoint returned empty user id")
	}
	return &profile, nil
}

// verifyIDToken delega la validación del id_token en el endpoint verify de LINE.
func (c *Client) verifyIDToken(ctx context.Context, idToken string) (*verifyResponse, error) {
	data := url.Values{
		"id_token":  {idToken},
		"client_id": {c.config.ChannelID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.VerifyURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("verify endpoint status %d: %s", resp.StatusCode, body)
	}

	var claims verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
