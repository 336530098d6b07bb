package user

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// ResetUserPassword is the payload confirming a password reset.
type ResetUserPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	rp.UID = core.CleanString(rp.UID)
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

// PasswordReset e-mails reset links and applies the new passwords.
type PasswordReset struct {
	svc     *Service
	tokens  TokenGenerator
	mailSvc core.EmailService
	baseURL string
}

func NewPasswordReset(svc *Service, conf *core.Config, mailSvc core.EmailService) *PasswordReset {
	return &PasswordReset{
		svc:     svc,
		tokens:  NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeout),
		mailSvc: mailSvc,
		baseURL: conf.FrontendBaseURL,
	}
}

type passwordResetData struct {
	Name string
	URL  string
}

// Request e-mails a reset link to the active user with the given email.
// Unknown and inactive users get ErrNotFound.
func (pr *PasswordReset) Request(ctx context.Context, email string) error {
	usr, err := pr.svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	token, err := pr.tokens.Make(usr)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	pr.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: passwordResetData{
			Name: usr.Name,
			URL:  fmt.Sprintf("%s/password-reset/%s/%s", pr.baseURL, EncodeUID(usr), token),
		},
	})
	return nil
}

func invalidTokenErr(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
}

// Confirm sets the new password of the user the uid and token were issued for.
func (pr *PasswordReset) Confirm(ctx context.Context, data ResetUserPassword) error {
	id, err := DecodeUID(data.UID)
	if err != nil {
		return invalidTokenErr(ErrInvalidToken)
	}
	usr, err := pr.svc.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidTokenErr(ErrInvalidToken)
		}
		return err
	}
	if !usr.IsActive {
		return invalidTokenErr(ErrInvalidToken)
	}
	if err = pr.tokens.Verify(usr, data.Token); err != nil {
		return invalidTokenErr(err)
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = core.Now()
	_, err = pr.svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
