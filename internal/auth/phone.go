package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// PhoneScopes are the OAuth scopes the account update needs.
var PhoneScopes = []string{identitytoolkit.FirebaseScope}

var (
	// ErrInvalidPhone is returned for a request the verification flow cannot start or finish.
	ErrInvalidPhone = errors.New("invalid phone verification request")
	// ErrCodeRejected is returned when the identity provider refuses a code or session.
	ErrCodeRejected = errors.New("verification code rejected")
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// PhoneBackend sends SMS codes, checks them and records the verified number
// on the user's account.
type PhoneBackend interface {
	SendCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error)
	VerifyCode(ctx context.Context, sessionInfo, code string) (string, error)
	SetPhoneNumber(ctx context.Context, uid, phoneNumber string) error
}

// PhoneVerifier runs the two-step SMS phone verification for signed-in users.
type PhoneVerifier struct {
	backend PhoneBackend
}

func NewPhoneVerifier(backend PhoneBackend) *PhoneVerifier {
	return &PhoneVerifier{backend: backend}
}

// SendCode texts a code to phoneNumber and returns the verification token
// the client hands back with the code.
func (v *PhoneVerifier) SendCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if !e164.MatchString(phoneNumber) {
		return "", fmt.Errorf("%w: phone number %q is not in E.164 form", ErrInvalidPhone, phoneNumber)
	}
	if strings.TrimSpace(recaptchaToken) == "" {
		return "", fmt.Errorf("%w: recaptcha token is required", ErrInvalidPhone)
	}
	return v.backend.SendCode(ctx, phoneNumber, recaptchaToken)
}

// Verify checks code against the verification token and stores the verified
// number on uid's account. It returns the verified number.
func (v *PhoneVerifier) Verify(ctx context.Context, uid, verificationToken, code string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("%w: caller has no user id", ErrInvalidPhone)
	}
	verificationToken, code = strings.TrimSpace(verificationToken), strings.TrimSpace(code)
	if verificationToken == "" || code == "" {
		return "", fmt.Errorf("%w: verification token and code are required", ErrInvalidPhone)
	}
	phoneNumber, err := v.backend.VerifyCode(ctx, verificationToken, code)
	if err != nil {
		return "", err
	}
	if err := v.backend.SetPhoneNumber(ctx, uid, phoneNumber); err != nil {
		return "", err
	}
	return phoneNumber, nil
}

// IdentityToolkit is the PhoneBackend of a Firebase project. Codes are sent
// and checked with the project's web API key; account updates use the
// service credentials.
type IdentityToolkit struct {
	public  *identitytoolkit.Service
	account *identitytoolkit.Service
}

// NewIdentityToolkit builds the backend. An empty apiKey sends every call
// with the service credentials in opts.
func NewIdentityToolkit(ctx context.Context, apiKey string, opts ...option.ClientOption) (*IdentityToolkit, error) {
	account, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("identitytoolkit client: %w", err)
	}
	public := account
	if apiKey != "" {
		if public, err = identitytoolkit.NewService(ctx, option.WithAPIKey(apiKey)); err != nil {
			return nil, fmt.Errorf("identitytoolkit client: %w", err)
		}
	}
	return &IdentityToolkit{public: public, account: account}, nil
}

func (t *IdentityToolkit) SendCode(ctx context.Context, phoneNumber, recaptchaToken string) (string, error) {
	resp, err := t.public.Relyingparty.SendVerificationCode(&identitytoolkit.IdentitytoolkitRelyingpartySendVerificationCodeRequest{
		PhoneNumber:    phoneNumber,
		RecaptchaToken: recaptchaToken,
	}).Context(ctx).Do()
	if err != nil {
		return "", toolkitError("send verification code", err)
	}
	return resp.SessionInfo, nil
}

func (t *IdentityToolkit) VerifyCode(ctx context.Context, sessionInfo, code string) (string, error) {
	resp, err := t.public.Relyingparty.VerifyPhoneNumber(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPhoneNumberRequest{
		SessionInfo: sessionInfo,
		Code:        code,
	}).Context(ctx).Do()
	if err != nil {
		return "", toolkitError("verify phone number", err)
	}
	if resp.PhoneNumber == "" {
		return "", fmt.Errorf("%w: no phone number in verification response", ErrCodeRejected)
	}
	return resp.PhoneNumber, nil
}

func (t *IdentityToolkit) SetPhoneNumber(ctx context.Context, uid, phoneNumber string) error {
	_, err := t.account.Relyingparty.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		LocalId:     uid,
		PhoneNumber: phoneNumber,
	}).Context(ctx).Do()
	if err != nil {
		return toolkitError("set account phone number", err)
	}
	return nil
}

// toolkitError reports a 400 from the provider as a rejected code and
// anything else as an upstream failure.
func toolkitError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ErrCodeRejected, apiErr.Message)
	}
	return &store.UpstreamError{Op: op, Err: err}
}
