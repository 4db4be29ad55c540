// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/schedule"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
)

// slugRegex validates slugs: lowercase letters, numbers, hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so errors match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("slug", validateSlug)
	_ = v.RegisterValidation("plan", validatePlan)
	_ = v.RegisterValidation("org_role", validateOrgRole)
	_ = v.RegisterValidation("scm_provider", validateSCMProvider)
	_ = v.RegisterValidation("cron", validateCron)
	_ = v.RegisterValidation("branch", validateBranch)
	_ = v.RegisterValidation("clean_text", validateCleanText)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}
	return result
}

func validateSlug(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return organization.IsValidSlug(value) && slugRegex.MatchString(value)
}

func validatePlan(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := plan.ParsePlan(value)
	return err == nil
}

func validateOrgRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, ok := organization.ParseRole(value)
	return ok
}

func validateSCMProvider(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return sourcerepo.Provider(value).IsValid()
}

func validateCron(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return schedule.ValidateCron(value) == nil
}

func validateBranch(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return sourcerepo.ValidateBranch(value) == nil
}

// validateCleanText rejects values that would change under SanitizeText.
func validateCleanText(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return SanitizeText(value) == strings.TrimSpace(value)
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "slug":
		return "must be a valid slug (lowercase letters, numbers, hyphens only)"
	case "plan":
		return fmt.Sprintf("must be one of: %s", joinPlans())
	case "org_role":
		return "must be one of: owner, admin, member, viewer"
	case "scm_provider":
		return "must be one of: github, gitlab, bitbucket, generic"
	case "cron":
		return "must be a five-field cron expression or a descriptor such as @daily"
	case "branch":
		return "must be a valid git branch name"
	case "clean_text":
		return "must not contain markup"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

func joinPlans() string {
	all := plan.All()
	strs := make([]string, len(all))
	for i, p := range all {
		strs[i] = p.String()
	}
	return strings.Join(strs, ", ")
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
