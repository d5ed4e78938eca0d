package core

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/mohae/deepcopy"
)

// -----------------------------------------------------------------------------
// Input
// -----------------------------------------------------------------------------

// Input is the parameter map handed to an action. Gathered parameters,
// extracted fragments and applied defaults all travel as Input values.
type Input map[string]any

func NewInput(m map[string]any) Input {
	if m == nil {
		return Input{}
	}
	return Input(m)
}

// AsMap returns a shallow copy of the underlying map.
func (i *Input) AsMap() map[string]any {
	if i == nil {
		return nil
	}
	result := make(map[string]any, len(*i))
	for k, v := range *i {
		result[k] = v
	}
	return result
}

func (i *Input) Prop(key string) any {
	if i == nil {
		return nil
	}
	return (*i)[key]
}

func (i *Input) Set(key string, value any) {
	if *i == nil {
		*i = Input{}
	}
	(*i)[key] = value
}

// Merge combines the receiver with other. Existing scalar values win,
// slices are appended, keys only present in other are added.
func (i *Input) Merge(other *Input) (*Input, error) {
	if i == nil || *i == nil {
		return other, nil
	}
	if other == nil {
		return i, nil
	}
	if err := mergo.Merge(i, *other, mergo.WithAppendSlice); err != nil {
		return nil, fmt.Errorf("failed to merge inputs: %w", err)
	}
	return i, nil
}

// Clone returns a deep copy of the input.
func (i *Input) Clone() (*Input, error) {
	if i == nil || *i == nil {
		return nil, nil
	}
	copied, err := deepCopyMap(map[string]any(*i))
	if err != nil {
		return nil, fmt.Errorf("failed to clone input: %w", err)
	}
	result := Input(copied)
	return &result, nil
}

// -----------------------------------------------------------------------------
// Output
// -----------------------------------------------------------------------------

// Output is the structured result of an action dispatch.
type Output map[string]any

// AsMap returns a shallow copy of the underlying map.
func (o *Output) AsMap() map[string]any {
	if o == nil {
		return nil
	}
	result := make(map[string]any, len(*o))
	for k, v := range *o {
		result[k] = v
	}
	return result
}

func (o *Output) Prop(key string) any {
	if o == nil {
		return nil
	}
	return (*o)[key]
}

func (o *Output) Set(key string, value any) {
	if *o == nil {
		*o = Output{}
	}
	(*o)[key] = value
}

// Merge combines the receiver with other, values from other winning.
func (o Output) Merge(other Output) (Output, error) {
	if o == nil {
		return other, nil
	}
	if err := mergo.Merge(&o, other, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge outputs: %w", err)
	}
	return o, nil
}

// Clone returns a deep copy of the output.
func (o *Output) Clone() (*Output, error) {
	if o == nil || *o == nil {
		return nil, nil
	}
	copied, err := deepCopyMap(map[string]any(*o))
	if err != nil {
		return nil, fmt.Errorf("failed to clone output: %w", err)
	}
	result := Output(copied)
	return &result, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func deepCopyMap(m map[string]any) (map[string]any, error) {
	copiedInterface := deepcopy.Copy(m)
	copied, ok := copiedInterface.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("failed to copy map")
	}
	return copied, nil
}
