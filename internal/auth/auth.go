package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"rpsledger/internal/logger"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated account ID
	UserIDKey ContextKey = "user_id"

	// InitDataHeader carries the Telegram WebApp initData
	InitDataHeader = "X-Telegram-Init-Data"

	// MaxInitDataAge is how long a signed initData stays valid
	MaxInitDataAge = 24 * time.Hour
)

// ValidateInitData validates a Telegram WebApp initData string and returns
// the Telegram user ID it was issued for. It checks the HMAC-SHA256
// signature and that auth_date is not older than MaxInitDataAge.
func ValidateInitData(initData, botToken string, now time.Time) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("empty initData")
	}
	if botToken == "" {
		return 0, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("malformed initData: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("hash not found in initData")
	}
	values.Del("hash")

	expected := Sign(values, botToken)
	if !hmac.Equal([]byte(hash), []byte(expected)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDateStr := values.Get("auth_date")
	if authDateStr == "" {
		return 0, fmt.Errorf("auth_date not found")
	}
	authDate, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid auth_date format")
	}
	if now.Sub(time.Unix(authDate, 0)) > MaxInitDataAge {
		return 0, fmt.Errorf("auth_date is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("user not found in initData")
	}

	userID, err := extractUserID(userStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse user: %w", err)
	}
	return userID, nil
}

// Sign computes the initData hash over values (without the hash field)
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+values.Get(key))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// extractUserID reads the id field of the user JSON object
func extractUserID(userJSON string) (int64, error) {
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return 0, err
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("user id not found")
	}
	return user.ID, nil
}

// Middleware returns an HTTP middleware that validates Telegram initData
// on every /api/ route except /api/ping
func Middleware(botToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for non-API routes (static files)
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Path == "/api/ping" {
				next.ServeHTTP(w, r)
				return
			}

			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				http.Error(w, "Unauthorized: missing "+InitDataHeader+" header", http.StatusUnauthorized)
				return
			}

			userID, err := ValidateInitData(initData, botToken, time.Now())
			if err != nil {
				logger.Debug(0, "auth_failed", fmt.Sprintf("path=%s error=%v", r.URL.Path, err))
				http.Error(w, "Unauthorized: invalid initData", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID adds the account ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the account ID from the context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
