package echoapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
	"github.com/trezcool/codedays/storage/sessions"
)

const (
	sessionCookie    = "session"
	contextUserKey   = "user"
	contextClaimsKey = "claims"

	loginURL     = "/auth/login"
	dashboardURL = "/student/dashboard"
)

var (
	errInvalidSession = errors.New("invalid session token")
	errForbidden      = echo.NewHTTPError(http.StatusForbidden, "You don't have the permission to access the requested resource.")
	errNotFound       = echo.NewHTTPError(http.StatusNotFound, "The requested page could not be found.")
)

// Claims represents the session claims carried by the session cookie.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// UserID is the ID of the User the session belongs to.
func (c Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

type sessionManager struct {
	key    []byte
	issuer string
	conf   core.ServerConfig
	store  sessions.Store
	users  user.Service
	now    func() time.Time
}

func newSessionManager(conf *core.Config, store sessions.Store, users user.Service) *sessionManager {
	return &sessionManager{
		key:    []byte(conf.SecretKey),
		issuer: conf.AppName,
		conf:   conf.Server,
		store:  store,
		users:  users,
		now:    time.Now,
	}
}

// GenerateToken signs a session token for usr, valid for ttl.
func (sm *sessionManager) GenerateToken(usr user.User, ttl time.Duration) (string, *Claims, error) {
	now := sm.now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    sm.issuer,
			Subject:   strconv.Itoa(usr.ID),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Username: usr.Username,
		Role:     usr.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.key)
	if err != nil {
		return "", nil, errors.Wrap(err, "signing token")
	}
	return token, claims, nil
}

func (sm *sessionManager) parseToken(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errInvalidSession
		}
		return sm.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errInvalidSession
	}
	return claims, nil
}

// login issues the session cookie. A remembered session survives browser restarts.
func (sm *sessionManager) login(ctx echo.Context, usr user.User, remember bool) error {
	ttl := sm.conf.SessionTTL
	if remember {
		ttl = sm.conf.RememberTTL
	}
	token, _, err := sm.GenerateToken(usr, ttl)
	if err != nil {
		return err
	}

	cookie := sm.cookie(token)
	if remember {
		cookie.MaxAge = int(ttl.Seconds())
		cookie.Expires = sm.now().Add(ttl)
	}
	ctx.SetCookie(cookie)
	return nil
}

// logout revokes the current session for the rest of its lifetime and drops the cookie.
func (sm *sessionManager) logout(ctx echo.Context) error {
	defer sm.clear(ctx)

	claims, ok := ctx.Get(contextClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	ttl := time.Unix(claims.ExpiresAt, 0).Sub(sm.now())
	return errors.Wrap(sm.store.Revoke(ctx.Request().Context(), claims.Id, ttl), "revoking session")
}

func (sm *sessionManager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.conf.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (sm *sessionManager) clear(ctx echo.Context) {
	cookie := sm.cookie("")
	cookie.MaxAge = -1
	ctx.SetCookie(cookie)
}

// load is a middleware putting the logged in User, if any, in the context.
// Invalid, revoked or orphaned sessions are dropped and the request goes on anonymously.
func (sm *sessionManager) load(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookie, err := ctx.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			return next(ctx)
		}

		claims, err := sm.parseToken(cookie.Value)
		if err != nil {
			sm.clear(ctx)
			return next(ctx)
		}

		reqCtx := ctx.Request().Context()
		revoked, err := sm.store.IsRevoked(reqCtx, claims.Id)
		if err != nil {
			return errors.Wrap(err, "checking session")
		}
		if revoked {
			sm.clear(ctx)
			return next(ctx)
		}

		id, err := claims.UserID()
		if err != nil {
			sm.clear(ctx)
			return next(ctx)
		}
		usr, err := sm.users.GetByID(reqCtx, id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				sm.clear(ctx)
				return next(ctx)
			}
			return errors.Wrap(err, "finding session user")
		}

		ctx.Set(contextClaimsKey, claims)
		ctx.Set(contextUserKey, usr)
		return next(ctx)
	}
}

// getContextUser returns the logged in User; ok is false for anonymous requests.
func getContextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}

// requireLogin sends anonymous requests to the login page, coming back afterwards.
func requireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, ok := getContextUser(ctx); ok {
			return next(ctx)
		}
		addFlash(ctx, flashInfo, "Please log in to access this page.")
		return ctx.Redirect(http.StatusFound, loginURL+"?next="+url.QueryEscape(ctx.Request().URL.RequestURI()))
	}
}

// staffOnly rejects users who are neither admins nor teachers.
func staffOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if usr, ok := getContextUser(ctx); ok && usr.IsStaff() {
			return next(ctx)
		}
		return errForbidden
	}
}

// safeNext returns next when it points inside the site, or the dashboard.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return dashboardURL
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return dashboardURL
	}
	return next
}
