package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"mime"
	"net/http"

	"localpub/internal/constants"
	"localpub/internal/security"
	"localpub/internal/utils"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (g *Gateway) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.sessionToken(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	g.renderLogin(w, "", "")
}

func (g *Gateway) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	clientIP := security.ClientIP(r)
	if g.store.RecordVisitor(security.Fingerprint(clientIP, r.UserAgent())) {
		g.log.Debugf("👤 New visitor %s (%d unique)", clientIP, g.store.UniqueVisitors())
	}

	creds, err := readLogin(r)
	if err != nil {
		g.log.WithError(err).Debugf("Malformed login from %s", clientIP)
		g.renderLogin(w, constants.MsgMalformedLogin, "")
		return
	}

	if !g.checkCredentials(creds.Username, creds.Password) {
		g.log.Info(utils.FormatLog("❌", "AUTH", http.StatusOK, clientIP))
		g.audit.LogAuthFailure(clientIP, creds.Username)
		g.renderLogin(w, constants.MsgInvalidLogin, creds.Username)
		return
	}

	token, err := g.store.CreateSession(creds.Username)
	if err != nil {
		g.log.WithError(err).Error("Failed to create session")
		g.templates.Render(w, http.StatusInternalServerError, pageError, map[string]interface{}{
			"Title":   "Login failed",
			"Message": "Could not start a session. Please try again.",
		})
		return
	}

	g.log.Info(utils.FormatLog("✅", "AUTH", http.StatusFound, clientIP))
	g.audit.LogAuthSuccess(clientIP, creds.Username)

	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    g.signer.Sign(token),
		Path:     "/",
		MaxAge:   constants.SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   utils.IsHTTPS(r),
		SameSite: constants.SessionCookieSameSite,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := g.sessionToken(r); ok {
		username := ""
		if sess, ok := g.store.Get(token); ok {
			username = sess.Username
		}
		g.store.Destroy(token)
		g.audit.LogLogout(security.ClientIP(r), username)
		g.log.Info(utils.FormatLog("👋", "LOGOUT", http.StatusFound, username))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   utils.IsHTTPS(r),
		SameSite: constants.SessionCookieSameSite,
	})
	http.Redirect(w, r, constants.LoginPath, http.StatusFound)
}

// requireSession sends visitors without a valid session to the login page.
func (g *Gateway) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.sessionToken(r); !ok {
			http.Redirect(w, r, constants.LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(constants.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	token, ok := g.signer.Verify(cookie.Value)
	if !ok {
		return "", false
	}
	if !g.store.Validate(token) {
		return "", false
	}
	return token, true
}

// checkCredentials compares fixed-size digests so neither comparison leaks
// the length or prefix of the configured values. Both always run.
func (g *Gateway) checkCredentials(username, password string) bool {
	u := sha256.Sum256([]byte(username))
	p := sha256.Sum256([]byte(password))
	userOK := subtle.ConstantTimeCompare(u[:], g.userHash[:])
	passOK := subtle.ConstantTimeCompare(p[:], g.passHash[:])
	return userOK&passOK == 1
}

func (g *Gateway) renderLogin(w http.ResponseWriter, errMsg, username string) {
	g.templates.Render(w, http.StatusOK, pageLogin, map[string]interface{}{
		"Title":    "Login",
		"Error":    errMsg,
		"Username": username,
	})
}

func readLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}
