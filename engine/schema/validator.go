package schema

import (
	"context"
	"fmt"
)

// -----------------------------------------------------------------------------
// Validator interface
// -----------------------------------------------------------------------------

type Validator interface {
	Validate(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// CompositeValidator
// -----------------------------------------------------------------------------

// CompositeValidator combines multiple validators, failing on the first error.
type CompositeValidator struct {
	validators []Validator
}

func NewCompositeValidator(validators ...Validator) *CompositeValidator {
	return &CompositeValidator{
		validators: validators,
	}
}

func (v *CompositeValidator) AddValidator(validator Validator) {
	v.validators = append(v.validators, validator)
}

func (v *CompositeValidator) Validate(ctx context.Context) error {
	for _, validator := range v.validators {
		if err := validator.Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// ParamsValidator
// -----------------------------------------------------------------------------

// ParamsValidator validates a parameter map against a schema.
type ParamsValidator struct {
	id     string
	params map[string]any
	schema *Schema
}

func NewParamsValidator(params map[string]any, schema *Schema, id string) *ParamsValidator {
	return &ParamsValidator{
		id:     id,
		params: params,
		schema: schema,
	}
}

func (v *ParamsValidator) Validate(ctx context.Context) error {
	if v.schema == nil {
		return nil
	}
	if v.params == nil {
		return fmt.Errorf("validation error for %s: parameters are nil but a schema is defined", v.id)
	}
	if _, err := v.schema.Validate(ctx, v.params); err != nil {
		return fmt.Errorf("parameters invalid for %s: %w", v.id, err)
	}
	return nil
}

// FuncValidator adapts a plain function into a Validator. Cross-field rules
// that JSON schema cannot express are written this way.
type FuncValidator func(ctx context.Context) error

func (f FuncValidator) Validate(ctx context.Context) error {
	return f(ctx)
}
