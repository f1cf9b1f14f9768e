package echoapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	flashCookie     = "flash"
	contextFlashKey = "flashes"

	flashInfo    = "info"
	flashSuccess = "success"
	flashError   = "error"
)

type flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// addFlash queues a one-shot message shown on the next rendered page.
func addFlash(ctx echo.Context, category, msg string) {
	flashes := pendingFlashes(ctx)
	flashes = append(flashes, flash{Category: category, Message: msg})
	ctx.Set(contextFlashKey, flashes)
	setFlashCookie(ctx, flashes)
}

// pendingFlashes are the messages carried by the request cookie plus those added since.
func pendingFlashes(ctx echo.Context) []flash {
	if flashes, ok := ctx.Get(contextFlashKey).([]flash); ok {
		return flashes
	}

	var flashes []flash
	if cookie, err := ctx.Cookie(flashCookie); err == nil && cookie.Value != "" {
		if b, err := base64.RawURLEncoding.DecodeString(cookie.Value); err == nil {
			_ = json.Unmarshal(b, &flashes)
		}
	}
	ctx.Set(contextFlashKey, flashes)
	return flashes
}

// popFlashes returns the pending messages and forgets them.
func popFlashes(ctx echo.Context) []flash {
	flashes := pendingFlashes(ctx)
	if len(flashes) > 0 {
		ctx.Set(contextFlashKey, []flash{})
		setFlashCookie(ctx, nil)
	}
	return flashes
}

func setFlashCookie(ctx echo.Context, flashes []flash) {
	cookie := &http.Cookie{Name: flashCookie, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
	if len(flashes) == 0 {
		cookie.MaxAge = -1
	} else {
		b, _ := json.Marshal(flashes)
		cookie.Value = base64.RawURLEncoding.EncodeToString(b)
	}
	ctx.SetCookie(cookie)
}
