package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Contact is the lead traveller's contact information.
type Contact struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"omitempty,min=6,max=32"`
}

func (c Contact) normalized() Contact {
	return Contact{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// Details is the kind-specific payload of a booking. It is implemented only
// by TourDetails and VisaDetails.
type Details interface {
	Kind() Kind
	check(needsPickup bool) error
}

// TourDetails carries the pickup and drop-off for tour bookings. Both are
// required only when an item needs pickup.
type TourDetails struct {
	PickupLocation string `json:"pickup_location" validate:"max=255"`
	DropLocation   string `json:"drop_location" validate:"max=255"`
}

func (TourDetails) Kind() Kind { return KindTour }

func (d TourDetails) check(needsPickup bool) error {
	if err := structErr(d); err != nil {
		return err
	}
	if needsPickup && (strings.TrimSpace(d.PickupLocation) == "" || strings.TrimSpace(d.DropLocation) == "") {
		return domainerr.NewValidationError("missing_pickup", "pickup and drop-off locations are required for this tour")
	}
	return nil
}

// VisaDetails carries the applicant data for visa bookings.
type VisaDetails struct {
	Nationality    string    `json:"nationality" validate:"required,max=64"`
	PassportNumber string    `json:"passport_number" validate:"required,alphanum,min=5,max=20"`
	TravelDate     time.Time `json:"travel_date" validate:"required"`
}

func (VisaDetails) Kind() Kind { return KindVisa }

func (d VisaDetails) check(bool) error { return structErr(d) }

// structErr runs tag validation and reports the first failing field.
func structErr(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domainerr.NewValidationError("invalid_"+strings.ToLower(fe.Field()),
			fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return domainerr.NewValidationError("invalid_input", err.Error())
}
