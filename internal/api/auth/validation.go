package auth

import (
	"errors"
	"regexp"

	"ngeblog/internal/pkg/apperr"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)
	hasLetter       = regexp.MustCompile(`[a-zA-Z]`)
	hasLower        = regexp.MustCompile(`[a-z]`)
	hasUpper        = regexp.MustCompile(`[A-Z]`)
	hasDigit        = regexp.MustCompile(`[0-9]`)
	hasSpecial      = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// field 一个待校验字段，按声明顺序返回第一条错误。
type field struct {
	value interface{}
	rules []validation.Rule
}

func check(fields ...field) error {
	for _, f := range fields {
		if err := validation.Validate(f.value, f.rules...); err != nil {
			return apperr.Validation(err.Error())
		}
	}
	return nil
}

func usernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Username is required"),
		validation.RuneLength(5, 0).Error("Username must be at least 5 characters"),
		validation.Match(usernamePattern).Error("Username must be alphanumeric or contains . and _"),
	}
}

func passwordRules(required string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(required),
		validation.RuneLength(6, 0).Error("Password must be at least 6 characters."),
		validation.Match(hasLower).Error("Password must contain at least one lowercase letter."),
		validation.Match(hasUpper).Error("Password must contain at least one uppercase letter."),
		validation.Match(hasDigit).Error("Password must contain at least one digit."),
		validation.Match(hasSpecial).Error("Password must contain at least one special character."),
	}
}

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Email is required"),
		is.Email.Error("Invalid email"),
	}
}

func phoneRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Phone number is required"),
		is.Digit.Error("Phone number must be numeric"),
		validation.RuneLength(10, 0).Error("Phone number must be at least 10 characters"),
		validation.RuneLength(0, 12).Error("Max phone number is 12 characters"),
	}
}

func matches(other string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s != "" && s != other {
			return errors.New("password must match.")
		}
		return nil
	})
}

// isEmail 判断登录标识是否为邮箱格式。
func isEmail(s string) bool {
	return s != "" && validation.Validate(s, is.Email) == nil
}

func (r RegisterInput) validate() error {
	return check(
		field{r.Username, usernameRules()},
		field{r.Password, passwordRules("Password is required.")},
		field{r.Email, emailRules()},
		field{r.Phone, phoneRules()},
	)
}

func (r LoginInput) validate() error {
	return check(
		field{r.Username, []validation.Rule{validation.Required.Error("Username is required")}},
		field{r.Password, []validation.Rule{validation.Required.Error("Password is required")}},
	)
}

func (r VerifyInput) validate() error {
	return check(
		field{r.UUID, []validation.Rule{validation.Required.Error("uuid is required")}},
		field{r.Token, []validation.Rule{validation.Required.Error("token is required")}},
	)
}

func (r ResetPasswordInput) validatePassword() error {
	return check(
		field{r.NewPassword, passwordRules("New password is required.")},
		field{r.ConfirmPassword, []validation.Rule{matches(r.NewPassword)}},
	)
}

func (r ChangeUsernameInput) validate() error {
	return check(
		field{r.Username, []validation.Rule{
			validation.Required.Error("Username is required."),
			validation.RuneLength(5, 0).Error("Username must be at least 5 characters."),
			validation.Match(hasLetter).Error("Username must contain at least one character."),
			validation.Match(usernamePattern).Error("Username must be alphanumeric or contains . and _"),
		}},
		field{r.Password, []validation.Rule{validation.Required.Error("Password is required.")}},
	)
}

func validateEmail(email string) error {
	return check(field{email, emailRules()})
}

func validatePhone(phone string) error {
	return check(field{phone, phoneRules()})
}

func (r ChangePasswordInput) validate() error {
	return check(
		field{r.CurrentPassword, []validation.Rule{validation.Required.Error("Password is required.")}},
		field{r.NewPassword, passwordRules("New password is required.")},
		field{r.ConfirmPassword, []validation.Rule{matches(r.NewPassword)}},
	)
}
