package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/go-playground/validator/v10"
)

// RegisterInput is the registration request body.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=100"`
	FullName string `json:"full_name" validate:"max=100"`
}

func (in RegisterInput) normalized() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	return in
}

// LoginInput is the login request body.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidEmail reports whether email is a syntactically valid address.
func ValidEmail(email string) bool {
	return validate.Var(strings.TrimSpace(email), "required,email") == nil
}

func validateInput(in RegisterInput) error {
	errValidate := validate.Struct(in)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(errValidate, &fieldErrs) || len(fieldErrs) == 0 {
		return apierror.Validation("Validation error").WithDetail(errValidate.Error())
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, describeFieldError(fe))
	}
	return apierror.Validation("Validation error").WithDetail(strings.Join(details, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if field == "fullname" {
		field = "full_name"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
