package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agora-social/agora/internal/app/domain/account"
)

type contextKey string

const accountKey contextKey = "account"

// withSession resolves the session cookie once per request and stashes the
// account in the context. A stale or unresolvable token is treated as
// anonymous, never as a failure.
func (h *handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err == nil && cookie.Value != "" {
			if acct, err := h.app.Accounts.ResolveSession(r.Context(), cookie.Value); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), accountKey, acct))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentAccount returns the authenticated account, if any.
func CurrentAccount(ctx context.Context) (account.Account, bool) {
	acct, ok := ctx.Value(accountKey).(account.Account)
	return acct, ok
}

// requireUser gates page routes: anonymous callers are redirected to the
// login page before any mutation happens.
func (h *handler) requireUser(w http.ResponseWriter, r *http.Request) (account.Account, bool) {
	acct, ok := CurrentAccount(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return account.Account{}, false
	}
	return acct, true
}

// rateLimited wraps next with a per-client token bucket. perMinute <= 0
// disables limiting.
func (h *handler) rateLimited(perMinute int, next http.Handler) http.Handler {
	if perMinute <= 0 {
		return next
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		lim, ok := limiters[key]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
			limiters[key] = lim
		}
		return lim
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiterFor(key).Allow() {
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the account identity and falls back to the remote host.
func clientKey(r *http.Request) string {
	if acct, ok := CurrentAccount(r.Context()); ok {
		return "acct:" + acct.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}
