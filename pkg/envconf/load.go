package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
)

// Var describes one environment variable read by a config struct.
type Var struct {
	Name     string
	Field    string
	Default  string
	Required bool
}

type field struct {
	path string
	env  string
	sf   reflect.StructField
	v    reflect.Value
}

// Load fills dst's `env`-tagged fields from the environment. Precedence is
// environment, then any non-zero value already in the field, then the
// `default` tag. A field with none of these is an ErrMissingRequired error;
// `default:""` marks a field optional. Untagged struct fields are descended
// into and `env:"-"` skips a field.
func Load(dst any) error {
	v, err := structValue(dst)
	if err != nil {
		return err
	}

	return walk(v, "", field.load)
}

// Describe lists the variables Load would read for dst, in field order.
func Describe(dst any) ([]Var, error) {
	v, err := structValue(dst)
	if err != nil {
		return nil, err
	}

	var vars []Var

	err = walk(v, "", func(f field) error {
		def, hasDefault := f.sf.Tag.Lookup("default")
		vars = append(vars, Var{
			Name:     f.env,
			Field:    f.path,
			Default:  def,
			Required: !hasDefault,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return vars, nil
}

func structValue(dst any) (reflect.Value, error) {
	if dst == nil {
		return reflect.Value{}, errors.New("destination is nil")
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, errors.New("destination must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.New("destination must point to a struct")
	}

	return v, nil
}

func walk(v reflect.Value, prefix string, fn func(field) error) error {
	t := v.Type()

	for i := range v.NumField() {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		path := sf.Name
		if prefix != "" {
			path = prefix + "." + sf.Name
		}

		tag := sf.Tag.Get("env")

		switch {
		case tag == "-":
			continue
		case tag != "":
			err := fn(field{path: path, env: tag, sf: sf, v: fv})
			if err != nil {
				return err
			}
		case fv.Kind() == reflect.Struct:
			err := walk(fv, path, fn)
			if err != nil {
				return err
			}
		case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}

			err := walk(fv.Elem(), path, fn)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (f field) load() error {
	raw, ok := os.LookupEnv(f.env)
	if !ok {
		// A value decoded earlier (e.g. from a config file) satisfies the field.
		if !f.v.IsZero() {
			return nil
		}

		def, hasDefault := f.sf.Tag.Lookup("default")
		if !hasDefault {
			return fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, f.env, f.path)
		}

		if def == "" {
			return nil
		}

		raw = def
	}

	err := setValue(f.v, raw)
	if err != nil {
		return fmt.Errorf("parse %q for field %q: %w", f.env, f.path, err)
	}

	return nil
}

//nolint:gocognit,cyclop
func setValue(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	// encoding.TextUnmarshaler support
	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			err := u.UnmarshalText([]byte(raw))
			if err != nil {
				return fmt.Errorf("unmarshal text: %w", err)
			}

			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)

		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		fv.SetBool(b)

		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		fv.SetInt(i)

		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		fv.SetUint(u)

		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}

		fv.SetFloat(f)

		return nil
	case reflect.Pointer:
		if fv.IsNil() {
			elem := reflect.New(fv.Type().Elem())

			err := setValue(elem.Elem(), raw)
			if err != nil {
				return fmt.Errorf("parse pointer: %w", err)
			}

			fv.Set(elem)

			return nil
		}

		err := setValue(fv.Elem(), raw)
		if err != nil {
			return fmt.Errorf("parse pointer: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("unsupported type: %w", ErrUnsupportedType)
	}
}
