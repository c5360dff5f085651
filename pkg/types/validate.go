package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/DoyleJ11/naval-sim/internal/engine"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return engine.IsKnownStage(engine.Stage(fl.Field().String()))
	})
	// Completed steps must be a prefix of the start-up procedure.
	_ = v.RegisterValidation("steps", func(fl validator.FieldLevel) bool {
		steps, ok := fl.Field().Interface().([]string)
		if !ok {
			return false
		}
		if len(steps) > len(engine.SequenceSteps) {
			return false
		}
		for i, id := range steps {
			if engine.SequenceSteps[i].ID != id {
				return false
			}
		}
		return true
	})
	return v
}
