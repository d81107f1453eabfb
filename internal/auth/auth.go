// Package auth registers accounts, checks credentials and issues session
// tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"planetfall-server/internal/player"
	"planetfall-server/internal/store"
)

const (
	DefaultTokenTTL         = 7 * 24 * time.Hour
	DefaultBcryptCost       = 12
	DefaultLoginWindow      = 60 * time.Second
	DefaultMaxLoginAttempts = 10

	minPasswordLen = 4
	minUsernameLen = 2
	maxUsernameLen = 16
	secretSetting  = "jwt_secret"
)

var (
	ErrInvalidUsername    = fmt.Errorf("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	ErrInvalidPassword    = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many login attempts, try again later")
	ErrInvalidToken       = errors.New("invalid token")
)

// Auth handles authentication. Players that are logged in are shared, so a
// second login for the same account sees the same *player.Player.
type Auth struct {
	Logger           zerolog.Logger
	TokenTTL         time.Duration
	BcryptCost       int
	LoginWindow      time.Duration
	MaxLoginAttempts int
	Now              func() time.Time

	db        *store.Store
	jwtSecret []byte

	// login attempts per IP
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry

	onlineMu sync.Mutex
	online   map[int64]*onlineEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

type onlineEntry struct {
	p    *player.Player
	refs int
}

// New creates an Auth over db, loading or creating the token secret
func New(db *store.Store, logger zerolog.Logger) *Auth {
	a := &Auth{
		Logger:           logger.With().Str("component", "auth").Logger(),
		TokenTTL:         DefaultTokenTTL,
		BcryptCost:       DefaultBcryptCost,
		LoginWindow:      DefaultLoginWindow,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		Now:              time.Now,
		db:               db,
		rateMap:          make(map[string]*rateEntry),
		online:           make(map[int64]*onlineEntry),
	}
	a.jwtSecret = a.loadOrCreateSecret()
	return a
}

// loadOrCreateSecret loads the JWT secret from the database, or generates
// and persists a new one if none exists.
func (a *Auth) loadOrCreateSecret() []byte {
	if h := a.db.GetSetting(secretSetting); h != "" {
		if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
			return b
		}
		a.Logger.Warn().Msg("stored token secret is malformed, generating a new one")
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if err := a.db.SetSetting(secretSetting, hex.EncodeToString(secret)); err != nil {
		a.Logger.Warn().Err(err).Msg("could not persist token secret")
	}
	return secret
}

// Register creates a new account. It does not log the account in.
func (a *Auth) Register(ctx context.Context, username, password string) (*player.Player, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return nil, ErrInvalidPassword
	}

	exists, err := a.db.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	id, err := a.db.CreatePlayer(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	a.Logger.Info().Int64("player", id).Str("username", username).Msg("account registered")
	return player.New(player.Record{ID: id, Username: username}, a.db), nil
}

// Login checks credentials and returns the live player and a fresh token.
func (a *Auth) Login(ctx context.Context, username, password, ip string) (*player.Player, string, error) {
	if !a.checkRate(ip) {
		return nil, "", ErrRateLimited
	}

	row, err := a.db.GetPlayerByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, "", fmt.Errorf("loading account: %w", err)
	}
	if row == nil || row.PassHash == "" {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PassHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	return a.signIn(row)
}

// ResumeToken logs in with a token from an earlier LOGIN_RESPONSE
func (a *Auth) ResumeToken(ctx context.Context, token string) (*player.Player, string, error) {
	id, err := a.ValidateToken(token)
	if err != nil {
		return nil, "", err
	}
	row, err := a.db.GetPlayerByID(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("loading account: %w", err)
	}
	if row == nil {
		return nil, "", ErrInvalidToken
	}
	return a.signIn(row)
}

func (a *Auth) signIn(row *store.PlayerRow) (*player.Player, string, error) {
	token, err := a.generateToken(row.ID, row.Username)
	if err != nil {
		return nil, "", fmt.Errorf("signing token: %w", err)
	}

	a.onlineMu.Lock()
	defer a.onlineMu.Unlock()
	e, ok := a.online[row.ID]
	if !ok {
		e = &onlineEntry{p: player.New(row.Record, a.db)}
		a.online[row.ID] = e
	}
	e.refs++
	return e.p, token, nil
}

// Logout releases one login of p. The player leaves the online set once
// every session holding it logged out.
func (a *Auth) Logout(p *player.Player) {
	if p == nil {
		return
	}
	a.onlineMu.Lock()
	defer a.onlineMu.Unlock()
	e, ok := a.online[p.ID]
	if !ok || e.p != p {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(a.online, p.ID)
	}
}

// Online reports whether the account is logged in anywhere
func (a *Auth) Online(playerID int64) bool {
	a.onlineMu.Lock()
	defer a.onlineMu.Unlock()
	_, ok := a.online[playerID]
	return ok
}

// ValidateToken validates a JWT and returns the player id it was issued to
func (a *Auth) ValidateToken(tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.Now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	pid, ok := claims["pid"].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: missing player id", ErrInvalidToken)
	}
	return int64(pid), nil
}

func (a *Auth) generateToken(playerID int64, username string) (string, error) {
	now := a.Now()
	claims := jwt.MapClaims{
		"pid": playerID,
		"usr": username,
		"exp": now.Add(a.TokenTTL).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(a.LoginWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= a.MaxLoginAttempts
}
