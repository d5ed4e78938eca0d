package core

import (
	"github.com/go-viper/mapstructure/v2"
)

// FromMap decodes loosely typed map data into a typed struct. Numeric and
// string conversions are applied leniently, which suits parameters that
// arrive from JSON produced by a language model.
func FromMap[T any](data any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	return out, decoder.Decode(data)
}
