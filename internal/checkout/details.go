package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Details is the client information form.
type Details struct {
	FirstName    string `json:"firstName" validate:"required,max=80"`
	LastName     string `json:"lastName" validate:"required,max=80"`
	Email        string `json:"email" validate:"required,email,max=254"`
	ReferralCode string `json:"referralCode,omitempty" validate:"omitempty,max=64"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func (d Details) normalized() Details {
	return Details{
		FirstName:    strings.TrimSpace(d.FirstName),
		LastName:     strings.TrimSpace(d.LastName),
		Email:        strings.TrimSpace(d.Email),
		ReferralCode: strings.TrimSpace(d.ReferralCode),
	}
}

// Validate returns a *DetailsError naming each invalid field.
func (d Details) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &DetailsError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "enter a valid email address"
	case "max":
		return "too long"
	default:
		return "invalid"
	}
}

func (d *Details) prefill(p *Details) {
	if p == nil {
		return
	}
	if p.FirstName != "" {
		d.FirstName = p.FirstName
	}
	if p.LastName != "" {
		d.LastName = p.LastName
	}
	if p.Email != "" {
		d.Email = p.Email
	}
}
