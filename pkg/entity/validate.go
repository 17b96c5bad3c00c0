package entity

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/composer/pkg/models"
	"github.com/go-playground/validator/v10"
)

const stepsField = "planning.static_plan.steps"

var (
	namePattern    = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

	validateOnce sync.Once
	structs      *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structs = validator.New(validator.WithRequiredStructEnabled())
		structs.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}

			return name
		})
	})

	return structs
}

// Validate checks an entity locally and returns every field-level failure.
// Name uniqueness is left to the store.
func Validate(e *models.Entity) FieldErrors {
	if e == nil {
		return FieldErrors{{Field: "entity", Code: CodeRequired, Message: "entity is required"}}
	}

	errs := structErrors(e)

	if e.Name != "" && !namePattern.MatchString(e.Name) {
		errs = append(errs, FieldError{
			Field:   "name",
			Code:    CodeInvalidName,
			Message: "name must start with a lowercase letter and contain only lowercase letters, digits, '-' or '_'",
		})
	}

	if e.Version != "" && !versionPattern.MatchString(e.Version) {
		errs = append(errs, FieldError{
			Field:   "version",
			Code:    CodeInvalidVersion,
			Message: "version must be MAJOR.MINOR.PATCH",
		})
	}

	switch kind := e.Kind().(type) {
	case models.ActionKind:
		errs = append(errs, validateAction(kind, e.Steps())...)
	case models.CompositeKind:
		errs = append(errs, validateComposite(kind, e.Status)...)
	}

	errs = append(errs, validateSteps(e)...)

	return errs
}

func structErrors(e *models.Entity) FieldErrors {
	err := structValidator().Struct(e)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return FieldErrors{{Field: "entity", Code: CodeInvalid, Message: err.Error()}}
	}

	errs := make(FieldErrors, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		code := CodeInvalid
		if fieldErr.Tag() == "required" {
			code = CodeRequired
		}

		errs = append(errs, FieldError{
			Field:   fieldPath(fieldErr.Namespace()),
			Code:    code,
			Message: fmt.Sprintf("failed on '%s' rule", fieldErr.Tag()),
		})
	}

	return errs
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}

	return namespace
}

// validateAction checks the action projection. The wire steps are scanned
// only for child targets, which the projection has no place for.
func validateAction(kind models.ActionKind, steps []models.Step) FieldErrors {
	var errs FieldErrors

	if kind.LogicGate == nil {
		errs = append(errs, FieldError{
			Field:   "logic_gate",
			Code:    CodeMissingSection,
			Message: "an ACTION requires a logic gate",
		})
	}

	for i, step := range steps {
		if step.Target.EntityID != "" || step.Target.ToolID != "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d].target", stepsField, i),
				Code:    CodeUnexpectedPlan,
				Message: "an ACTION cannot invoke child entities or tools",
			})
		}
	}

	if kind.PromptTemplate == "" {
		errs = append(errs, FieldError{
			Field:   stepsField,
			Code:    CodeMissingPrompt,
			Message: "an ACTION requires a prompt template",
		})
	}

	return errs
}

func validateComposite(kind models.CompositeKind, status models.EntityStatus) FieldErrors {
	if kind.Planning == nil {
		return FieldErrors{{
			Field:   "planning",
			Code:    CodeMissingSection,
			Message: fmt.Sprintf("a %s requires a planning section", kind.Type()),
		}}
	}

	if len(kind.Steps) == 0 && status != models.EntityStatusDraft {
		return FieldErrors{{
			Field:   stepsField,
			Code:    CodeEmptyPlan,
			Message: "only a DRAFT may have an empty plan",
		}}
	}

	return nil
}

func validateSteps(e *models.Entity) FieldErrors {
	var errs FieldErrors

	steps := e.Steps()
	seen := make(map[string]bool, len(steps))
	orders := make([]int, 0, len(steps))

	for i, step := range steps {
		field := fmt.Sprintf("%s[%d]", stepsField, i)

		if step.StepID == "" {
			errs = append(errs, FieldError{Field: field + ".step_id", Code: CodeRequired, Message: "step id is required"})
		} else if seen[step.StepID] {
			errs = append(errs, FieldError{
				Field:   field + ".step_id",
				Code:    CodeDuplicateStep,
				Message: fmt.Sprintf("step id %q is used more than once", step.StepID),
			})
		}

		seen[step.StepID] = true
		orders = append(orders, step.Order)

		if step.Target.Count() != 1 {
			errs = append(errs, FieldError{
				Field:   field + ".target",
				Code:    CodeInvalidTarget,
				Message: "a step must have exactly one of entity_id, tool_id or prompt_template",
			})
		}

		if e.ID != "" && step.Target.EntityID == e.ID {
			errs = append(errs, FieldError{
				Field:   field + ".target.entity_id",
				Code:    CodeSelfReference,
				Message: "an entity cannot invoke itself",
			})
		}
	}

	sort.Ints(orders)

	for i, order := range orders {
		if order != i+1 {
			errs = append(errs, FieldError{
				Field:   stepsField,
				Code:    CodeInvalidOrder,
				Message: "step order must be contiguous starting at 1",
			})

			break
		}
	}

	return errs
}
