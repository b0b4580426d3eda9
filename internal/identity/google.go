package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/s/eduPortal/internal/logger"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// InitGoogleOAuthConfig - конфиг OAuth2 для входа через Google.
func InitGoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

// Google - федеративный вход через Google.
// Если задан Firebase, Google-аккаунт привязывается к Firebase и uid берется оттуда.
type Google struct {
	Config      *oauth2.Config
	Firebase    *Firebase
	UserInfoURL string
	log         *logger.Logger
}

func NewGoogle(cfg *oauth2.Config, firebase *Firebase, log *logger.Logger) *Google {
	if log == nil {
		log = logger.Nop()
	}
	return &Google{Config: cfg, Firebase: firebase, UserInfoURL: googleUserInfoURL, log: log.With("component", "google")}
}

func (g *Google) AuthCodeURL(state string) string {
	return g.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (g *Google) Exchange(ctx context.Context, code string) (Account, error) {
	token, err := g.Config.Exchange(ctx, code)
	if err != nil {
		return Account{}, fmt.Errorf("token exchange: %w", err)
	}

	client := g.Config.Client(ctx, token)
	resp, err := client.Get(g.UserInfoURL)
	if err != nil {
		return Account{}, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return Account{}, fmt.Errorf("google userinfo: status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Account{}, fmt.Errorf("google userinfo decode: %w", err)
	}

	acc := Account{UID: info.ID, Email: info.Email, DisplayName: info.Name}

	idToken, _ := token.Extra("id_token").(string)
	if g.Firebase == nil || idToken == "" {
		return acc, nil
	}
	linked, err := g.Firebase.SignInWithGoogle(ctx, idToken, g.Config.RedirectURL)
	if err != nil {
		// Без Firebase остаемся с Google id: вход все равно возможен
		g.log.Warn("firebase link failed, using google id", "error", err)
		return acc, nil
	}
	acc.UID = linked.UID
	acc.IDToken = linked.IDToken
	if acc.Email == "" {
		acc.Email = linked.Email
	}
	if acc.DisplayName == "" {
		acc.DisplayName = linked.DisplayName
	}
	return acc, nil
}
