package editor

import (
	"errors"
	"time"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/entity"
	"github.com/google/uuid"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrValidation     = errors.New("draft has validation errors")
	ErrReadOnlyField  = errors.New("field cannot be changed from the editor")
	ErrNotComposite   = errors.New("entity has no plan to edit")
	ErrUnknownStep    = errors.New("step not found in plan")
	ErrBannerNotFound = errors.New("banner not found")
)

// Category groups errors by how the console surfaces them.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryConflict       Category = "conflict"
	CategoryTransport      Category = "transport"
	CategoryAuthentication Category = "authentication"
)

// Classify maps an error onto a Category. Unknown errors count as transport.
func Classify(err error) Category {
	var (
		fieldErrs      entity.FieldErrors
		conversionErrs convert.ConversionErrors
	)

	switch {
	case errors.Is(err, ErrValidation),
		errors.As(err, &fieldErrs),
		errors.As(err, &conversionErrs),
		client.IsValidation(err):
		return CategoryValidation
	case client.IsConflict(err):
		return CategoryConflict
	case client.IsUnauthorized(err):
		return CategoryAuthentication
	default:
		return CategoryTransport
	}
}

// Banner is a session-level message. Authentication banners cannot be
// dismissed; the operator has to sign in again.
type Banner struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Message     string    `json:"message"`
	Dismissible bool      `json:"dismissible"`
	CreatedAt   time.Time `json:"created_at"`
}

func newBanner(err error) Banner {
	category := Classify(err)

	return Banner{
		ID:          uuid.New().String(),
		Category:    category,
		Message:     err.Error(),
		Dismissible: category != CategoryAuthentication,
		CreatedAt:   time.Now().UTC(),
	}
}
