package keywarden

import (
	"errors"
	"net/http"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called before
	// Build completed.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidEmail rejects input that does not parse as an email address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword rejects empty or over-length passwords.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrPasswordTooWeak rejects passwords below the configured minimum length.
	ErrPasswordTooWeak = errors.New("password too weak")
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified gates sign-in when verified email is required.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailExists covers both email and provider-pair collisions at sign-up.
	ErrEmailExists = errors.New("email already registered")
	// ErrRateLimited is returned when an admission bucket denies the request.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrSessionInvalid covers unparsable tokens, unknown selectors, and
	// verifier mismatches; the three are deliberately indistinguishable.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is returned for a well-formed session past expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrEmailVerificationInvalid covers parse, lookup, and verifier failures.
	ErrEmailVerificationInvalid = errors.New("email verification token invalid")
	// ErrEmailVerificationExpired is returned for a valid token past expiry.
	ErrEmailVerificationExpired = errors.New("email verification token expired")
	// ErrPasswordResetInvalid covers parse, lookup, and verifier failures.
	ErrPasswordResetInvalid = errors.New("password reset token invalid")
	// ErrPasswordResetExpired is returned for a valid token past expiry.
	ErrPasswordResetExpired = errors.New("password reset token expired")
	// ErrOAuthStateInvalid covers unknown or already-consumed OAuth state.
	ErrOAuthStateInvalid = errors.New("oauth state invalid")
	// ErrOAuthStateExpired is returned for a known state past expiry.
	ErrOAuthStateExpired = errors.New("oauth state expired")
	// ErrOAuthCallbackInvalid covers code exchange and userinfo rejections.
	ErrOAuthCallbackInvalid = errors.New("oauth callback invalid")
	// ErrOAuthProviderUnknown is returned for an unregistered provider name.
	ErrOAuthProviderUnknown = errors.New("unknown oauth provider")
	// ErrInternal wraps unexpected collaborator faults at the engine boundary.
	ErrInternal = errors.New("internal error")

	// ErrNotFound is the Repository-level miss sentinel. It never crosses the
	// engine boundary; flows translate it into the collapsed codes above.
	ErrNotFound = errors.New("record not found")
)

// ErrorInfo is the caller-facing description of an engine outcome: a stable
// code, a production-safe message, and an HTTP status hint. Detail is only
// populated in development mode and must never reach production responses.
type ErrorInfo struct {
	Code       string
	Message    string
	HTTPStatus int
	Detail     string
}

type errorMapping struct {
	err  error
	info ErrorInfo
}

// Ordered so that more specific sentinels are matched before ErrInternal.
var errorTable = []errorMapping{
	{ErrInvalidEmail, ErrorInfo{Code: "INVALID_EMAIL", Message: "Enter a valid email address.", HTTPStatus: http.StatusBadRequest}},
	{ErrInvalidPassword, ErrorInfo{Code: "INVALID_PASSWORD", Message: "Password is not acceptable.", HTTPStatus: http.StatusBadRequest}},
	{ErrPasswordTooWeak, ErrorInfo{Code: "PASSWORD_TOO_WEAK", Message: "Choose a longer password.", HTTPStatus: http.StatusBadRequest}},
	{ErrInvalidCredentials, ErrorInfo{Code: "INVALID_CREDENTIALS", Message: "Email or password is incorrect.", HTTPStatus: http.StatusUnauthorized}},
	{ErrAccountLocked, ErrorInfo{Code: "ACCOUNT_LOCKED", Message: "Account temporarily locked. Try again later.", HTTPStatus: http.StatusForbidden}},
	{ErrEmailNotVerified, ErrorInfo{Code: "EMAIL_NOT_VERIFIED", Message: "Verify your email address to continue.", HTTPStatus: http.StatusForbidden}},
	{ErrEmailExists, ErrorInfo{Code: "EMAIL_EXISTS", Message: "This email cannot be used.", HTTPStatus: http.StatusConflict}},
	{ErrRateLimited, ErrorInfo{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many attempts. Try again later.", HTTPStatus: http.StatusTooManyRequests}},
	{ErrSessionInvalid, ErrorInfo{Code: "SESSION_INVALID", Message: "Sign in to continue.", HTTPStatus: http.StatusUnauthorized}},
	{ErrSessionExpired, ErrorInfo{Code: "SESSION_EXPIRED", Message: "Session expired. Sign in again.", HTTPStatus: http.StatusUnauthorized}},
	{ErrEmailVerificationInvalid, ErrorInfo{Code: "EMAIL_VERIFICATION_INVALID", Message: "Verification link is not valid.", HTTPStatus: http.StatusBadRequest}},
	{ErrEmailVerificationExpired, ErrorInfo{Code: "EMAIL_VERIFICATION_EXPIRED", Message: "Verification link expired. Request a new one.", HTTPStatus: http.StatusBadRequest}},
	{ErrPasswordResetInvalid, ErrorInfo{Code: "PASSWORD_RESET_INVALID", Message: "Reset link is not valid.", HTTPStatus: http.StatusBadRequest}},
	{ErrPasswordResetExpired, ErrorInfo{Code: "PASSWORD_RESET_EXPIRED", Message: "Reset link expired. Request a new one.", HTTPStatus: http.StatusBadRequest}},
	{ErrOAuthStateInvalid, ErrorInfo{Code: "OAUTH_STATE_INVALID", Message: "Sign-in attempt could not be completed.", HTTPStatus: http.StatusBadRequest}},
	{ErrOAuthStateExpired, ErrorInfo{Code: "OAUTH_STATE_EXPIRED", Message: "Sign-in attempt timed out. Start again.", HTTPStatus: http.StatusBadRequest}},
	{ErrOAuthCallbackInvalid, ErrorInfo{Code: "OAUTH_CALLBACK_INVALID", Message: "Sign-in attempt could not be completed.", HTTPStatus: http.StatusBadRequest}},
	{ErrOAuthProviderUnknown, ErrorInfo{Code: "OAUTH_PROVIDER_UNKNOWN", Message: "Sign-in method is not available.", HTTPStatus: http.StatusBadRequest}},
	{ErrEngineNotReady, ErrorInfo{Code: "INTERNAL_ERROR", Message: "Something went wrong. Try again.", HTTPStatus: http.StatusInternalServerError}},
}

var internalErrorInfo = ErrorInfo{
	Code:       "INTERNAL_ERROR",
	Message:    "Something went wrong. Try again.",
	HTTPStatus: http.StatusInternalServerError,
}

// Describe maps any error returned by an Engine operation to its
// caller-facing [ErrorInfo]. Unrecognized errors, including everything
// wrapped in [ErrInternal], map to INTERNAL_ERROR.
func Describe(err error) ErrorInfo {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.info
		}
	}
	return internalErrorInfo
}
