package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateTemplate, RecurringTemplate{})
	return v
}

// validateTemplate requires monthly templates to name a day of month.
func validateTemplate(sl validator.StructLevel) {
	tpl := sl.Current().Interface().(RecurringTemplate)
	if tpl.Frequency == FrequencyMonthly && (tpl.Interval < 1 || tpl.Interval > 31) {
		sl.ReportError(tpl.Interval, "Interval", "Interval", "day_of_month", "")
	}
}

// Validate checks struct tags on posts, units and templates and reports the first failing field.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			first := vErrs[0]
			return fmt.Errorf("field %s failed rule %s", first.Namespace(), first.Tag())
		}
		return err
	}
	return nil
}
