package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newFormRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			handlerCalled := false
			handler := NewCSRFMiddleware(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/home", nil))

			if !handlerCalled {
				t.Fatalf("handler should have been called for %s request", method)
			}
		})
	}
}

func TestCSRFMiddleware_GETRequest_SetsCookieAndContextToken(t *testing.T) {
	var contextToken string
	handler := NewCSRFMiddleware(CookieConfig{Secure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextToken = CSRFTokenFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/home", nil))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected csrf_token cookie")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(cookie.Value))
	}
	if !cookie.Secure || !cookie.HttpOnly {
		t.Error("cookie should be Secure and HttpOnly")
	}
	if contextToken != cookie.Value {
		t.Errorf("context token = %q, want cookie value", contextToken)
	}
}

func TestCSRFMiddleware_GETRequest_ExistingCookie_DoesNotReplace(t *testing.T) {
	var contextToken string
	handler := NewCSRFMiddleware(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contextToken = CSRFTokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Error("existing cookie should not be replaced")
	}
	if contextToken != "existing" {
		t.Errorf("context token = %q, want %q", contextToken, "existing")
	}
}

func TestCSRFMiddleware_POSTRequest(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		formToken  string
		header     string
		wantStatus int
	}{
		{"no cookie", "", "abc", "", http.StatusForbidden},
		{"no submitted token", "abc", "", "", http.StatusForbidden},
		{"mismatch", "abc", "xyz", "", http.StatusForbidden},
		{"form field matches", "abc", "abc", "", http.StatusOK},
		{"header matches", "abc", "", "abc", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCSRFMiddleware(CookieConfig{})(okHandler)

			form := url.Values{}
			if tt.formToken != "" {
				form.Set(CSRFFieldName, tt.formToken)
			}
			req := newFormRequest(http.MethodPost, "/home/compose/submit", form)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCSRFMiddleware_AllStateMutatingMethods_RequireToken(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			handler := NewCSRFMiddleware(CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/home", nil))
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
		})
	}
}
