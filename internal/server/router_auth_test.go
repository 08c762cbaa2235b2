package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubTokenValidator struct {
	subject     string
	validateErr error
}

func (s stubTokenValidator) ValidateToken(string) (string, error) {
	if s.validateErr != nil {
		return "", s.validateErr
	}
	return s.subject, nil
}

// newAuthContext builds a gin context for GET /api/communities/guild-1 with the given
// Authorization header; an empty header is omitted.
func newAuthContext(authorization string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/communities/guild-1", http.NoBody)
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	ctx.Request = request
	return ctx, recorder
}

func newAuthHandler(validator stubTokenValidator, logger *zap.Logger) *httpHandler {
	return &httpHandler{
		tokens:      validator,
		adminUserID: "admin-1",
		logger:      logger,
	}
}

func TestAuthorizeRequestLogLevelDependsOnFailure(t *testing.T) {
	testCases := []struct {
		name          string
		validateErr   error
		expectedLevel zapcore.Level
	}{
		{name: "expired token", validateErr: jwt.ErrTokenExpired, expectedLevel: zapcore.InfoLevel},
		{name: "bad signature", validateErr: errors.New("signature mismatch"), expectedLevel: zapcore.WarnLevel},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ctx, recorder := newAuthContext("Bearer some-token")
			core, logs := observer.New(zapcore.DebugLevel)
			handler := newAuthHandler(stubTokenValidator{validateErr: testCase.validateErr}, zap.New(core))

			handler.authorizeRequest(ctx)

			if recorder.Code != http.StatusUnauthorized {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
			}
			entries := logs.FilterMessage("token validation failed").All()
			if len(entries) != 1 {
				t.Fatalf("expected exactly one log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.expectedLevel {
				t.Fatalf("expected %s level, got %s", testCase.expectedLevel, entries[0].Level)
			}
			matched := false
			for _, field := range entries[0].Context {
				if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), testCase.validateErr) {
					matched = true
				}
			}
			if !matched {
				t.Fatalf("expected error context, got %v", entries[0].Context)
			}
		})
	}
}

func TestAuthorizeRequestRejectsNonAdminSubject(t *testing.T) {
	ctx, recorder := newAuthContext("Bearer valid-token")
	core, logs := observer.New(zapcore.DebugLevel)
	handler := newAuthHandler(stubTokenValidator{subject: "someone-else"}, zap.New(core))

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusForbidden)
	}
	if !ctx.IsAborted() {
		t.Fatalf("expected request to be aborted")
	}
	if logs.FilterMessage("token subject is not the admin user").Len() != 1 {
		t.Fatalf("expected subject mismatch to be logged")
	}
}

func TestAuthorizeRequestAcceptsAdminSubject(t *testing.T) {
	ctx, recorder := newAuthContext("Bearer valid-token")
	handler := newAuthHandler(stubTokenValidator{subject: "admin-1"}, zap.NewNop())

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to continue, got status %d", recorder.Code)
	}
	if subject := ctx.GetString(adminSubjectContextKey); subject != "admin-1" {
		t.Fatalf("expected admin subject in context, got %q", subject)
	}
}

func TestAuthorizeRequestRequiresBearerHeader(t *testing.T) {
	for _, header := range []string{"", "Basic YWRtaW46c2VjcmV0", "Bearer   "} {
		ctx, recorder := newAuthContext(header)
		handler := newAuthHandler(stubTokenValidator{subject: "admin-1"}, zap.NewNop())

		handler.authorizeRequest(ctx)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: unexpected status code: got %d, want %d", header, recorder.Code, http.StatusUnauthorized)
		}
	}
}
