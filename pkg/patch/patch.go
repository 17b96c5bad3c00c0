// Package patch applies partial updates sent by the console onto structs.
package patch

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Apply decodes values onto target, a pointer to a struct, matching keys by
// the given struct tag. A key whose value is nil resets its field to the zero
// value, so pointer sections and references are removed rather than emptied.
// Unknown keys are an error. Target may be partially written on error.
func Apply(target any, values map[string]any, tagName string) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("patch target must be a pointer to a struct, got %T", target)
	}

	fields := fieldsByTag(rv.Elem(), tagName)
	decoded := make(map[string]any, len(values))

	var cleared []reflect.Value

	for key, value := range values {
		if field, ok := fields[key]; ok && isNil(value) {
			cleared = append(cleared, field)

			continue
		}

		decoded[key] = value
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		TagName:     tagName,
		ZeroFields:  true,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(decoded); err != nil {
		return err
	}

	for _, field := range cleared {
		field.Set(reflect.Zero(field.Type()))
	}

	return nil
}

func fieldsByTag(v reflect.Value, tagName string) map[string]reflect.Value {
	fields := make(map[string]reflect.Value, v.NumField())
	t := v.Type()

	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(sf.Tag.Get(tagName), ",")

		switch name {
		case "-":
			continue
		case "":
			name = sf.Name
		}

		fields[name] = v.Field(i)
	}

	return fields
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
