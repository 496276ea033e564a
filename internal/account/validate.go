package account

import (
	"regexp"
	"strconv"

	"github.com/bgbm/dnastore/internal/apperr"
	"github.com/go-playground/validator/v10"
)

// minPasswordLength is the shortest accepted password.
const minPasswordLength = 8

var (
	validate        = validator.New()
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
)

// checkUsername records problems with a username.
func checkUsername(fields apperr.FieldErrors, username string) {
	switch {
	case username == "":
		fields.Add("username", "this field is required")
	case len(username) > 150:
		fields.Add("username", "ensure this field has no more than 150 characters")
	case !usernamePattern.MatchString(username):
		fields.Add("username", "enter a valid username: letters, digits and @/./+/-/_ only")
	}
}

// checkEmail records problems with an email address.
func checkEmail(fields apperr.FieldErrors, email string) {
	switch {
	case email == "":
		fields.Add("email", "this field is required")
	case len(email) > 254 || validate.Var(email, "email") != nil:
		fields.Add("email", "enter a valid email address")
	}
}

// checkNewPassword records problems with a new password and its confirmation.
func checkNewPassword(fields apperr.FieldErrors, field, password, confirm, confirmField string) {
	if len(password) < minPasswordLength {
		fields.Add(field, "ensure this field has at least 8 characters")
	}
	if password != confirm {
		fields.Add(confirmField, "passwords do not match")
	}
}

// checkLength records a length problem for an optional text field.
func checkLength(fields apperr.FieldErrors, field, value string, limit int) {
	if len([]rune(value)) > limit {
		fields.Add(field, "ensure this field has no more than "+strconv.Itoa(limit)+" characters")
	}
}
