package accounts

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire and storage format of UserRecord.RegisteredOn.
const DateLayout = "2006-01-02"

// reservedRunes would break the control message grammar or LIST replies.
const reservedRunes = "|:,=@"

// maxUsernameBytes bounds the encoded name; the validator's max counts runes.
const maxUsernameBytes = 64

type registration struct {
	Username string `validate:"required,username"`
	Password string `validate:"required,max=1024"`
	Date     string `validate:"required,datetime=2006-01-02"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registering a fresh tag name on a fresh validator cannot fail
	_ = v.RegisterValidation("username", validUsername)
	return v
}

func validUsername(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) > maxUsernameBytes || !utf8.ValidString(s) || strings.ContainsAny(s, reservedRunes) {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func (r *Registry) validate(in registration) error {
	err := r.v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
