package conf

/*
   checkout.go implements the struct hydration side of the conf package.
   Instead of sprinkling GetEnv calls around a package, a consumer declares a
   struct where each field is annotated with the conf variable backing it and
   calls Checkout once. See shepherd/database/config.go for an example.

   Tags understood:

   conf:"SOME_VAR"     - hydrate this field from SOME_VAR
   conf:"-"            - never touch this field
   (no tag)            - hydrate from a variable named exactly like the field
   conf_default:"v"    - value to use when the variable is unset or empty
*/

import (
	"fmt"
	"reflect"
	"strconv"
)

// Checkout hydrates the supplied value from conf. Accepted shapes are a
// pointer to a struct, whose fields are filled per the tag rules above, or a
// []string passed by value, whose elements are replaced in place by the value
// of the variable they name ("" when unset). Anything else is rejected so
// callers notice when a copy would have been silently hydrated and thrown
// away.
func Checkout(v interface{}) error {

	value := reflect.ValueOf(v)

	switch value.Kind() {
	case reflect.Ptr:
		if value.Elem().Kind() != reflect.Struct {
			// A pointer to a slice (or anything else) is rejected: a slice
			// header is already a reference, pass it by value.
			return fmt.Errorf("conf: cannot checkout into a pointer to %s", value.Elem().Kind())
		}
		return checkoutStruct(value.Elem())
	case reflect.Slice:
		if value.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("conf: cannot checkout into a slice of %s", value.Type().Elem().Kind())
		}
		for i := 0; i < value.Len(); i++ {
			looked, _ := LookupEnv(value.Index(i).String())
			value.Index(i).SetString(looked)
		}
		return nil
	default:
		// A struct passed by value lands here; mutating it would be useless.
		return fmt.Errorf("conf: checkout requires a pointer to a struct, got %s", value.Kind())
	}
}

func checkoutStruct(target reflect.Value) error {

	targetType := target.Type()

	for i := 0; i < target.NumField(); i++ {
		field := target.Field(i)
		fieldType := targetType.Field(i)

		// Walk into embedded structs so composed configs work.
		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := checkoutStruct(field); err != nil {
				return err
			}
			continue
		}

		if !field.CanSet() {
			continue
		}

		key := fieldType.Tag.Get("conf")
		if key == "-" {
			continue
		}
		if key == "" {
			key = fieldType.Name
		}

		looked, ok := LookupEnv(key)
		if !ok || looked == "" {
			looked = fieldType.Tag.Get("conf_default")
		}
		if looked == "" {
			continue
		}

		if err := setField(field, looked); err != nil {
			return fmt.Errorf("conf: field %s (%s): %s", fieldType.Name, key, err)
		}
	}

	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
