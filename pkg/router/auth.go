package router

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pH0enix46/EMR/pkg/policy"
)

// AuthAction is the result of the auth gate.
type AuthAction int

const (
	AuthAllow AuthAction = iota
	AuthRedirectToLogin
	AuthRewriteToForbidden
	AuthRedirectToHome
)

func (a AuthAction) String() string {
	switch a {
	case AuthAllow:
		return "allow"
	case AuthRedirectToLogin:
		return "redirect_to_login"
	case AuthRewriteToForbidden:
		return "rewrite_to_forbidden"
	case AuthRedirectToHome:
		return "redirect_to_home"
	default:
		return "unknown"
	}
}

// AuthDecision carries the action and, for non-allow actions, its target.
type AuthDecision struct {
	Action AuthAction
	Target string
}

// Authorize evaluates the session against the path policy. The protected
// check runs before the public-only check so that anonymous visitors of a
// gated page are sent to login.
func Authorize(t *policy.Table, path, rawQuery string, s Session) AuthDecision {
	if t.IsProtected(path) && !s.Authenticated() {
		callback := path
		if rawQuery != "" {
			callback += "?" + rawQuery
		}
		q := url.Values{"callbackUrl": []string{callback}}
		return AuthDecision{
			Action: AuthRedirectToLogin,
			Target: t.LoginPath + "?" + q.Encode(),
		}
	}

	// The role cookie is trusted as sent; a missing role is simply not admin.
	if t.IsAdmin(path) && s.Role != t.AdminRole {
		return AuthDecision{Action: AuthRewriteToForbidden, Target: t.ForbiddenPath}
	}

	if t.IsPublicOnly(path) && s.Authenticated() {
		return AuthDecision{Action: AuthRedirectToHome, Target: t.HomePath}
	}

	return AuthDecision{Action: AuthAllow}
}

func (p *Pipeline) authStage(_ context.Context, req *Request) *Outcome {
	d := Authorize(p.table, req.Path, req.RawQuery, req.Session())

	switch d.Action {
	case AuthRedirectToLogin:
		return &Outcome{
			Action:     Redirect,
			Reason:     ReasonLoginRequired,
			StatusCode: http.StatusTemporaryRedirect,
			Location:   d.Target,
		}
	case AuthRewriteToForbidden:
		return &Outcome{
			Action: Rewrite,
			Reason: ReasonForbidden,
			Path:   d.Target,
		}
	case AuthRedirectToHome:
		return &Outcome{
			Action:     Redirect,
			Reason:     ReasonAuthenticated,
			StatusCode: http.StatusTemporaryRedirect,
			Location:   d.Target,
		}
	}
	return nil
}
