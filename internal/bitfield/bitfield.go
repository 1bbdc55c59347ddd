// Package bitfield packs and unpacks struct fields into a single integer
// using `bitfield:"n"` struct tags.
//
// Adapted from the teacher's src/bitfield package, which packed exactly
// one type (PageFlags) for exactly one caller. Generalized here so every
// fixed-width flag set the kernel core needs — buddy PageFrame flags,
// page-table mapping flags, and the rest — can reuse the same packer
// instead of each hand-rolling its own shift/mask pair.
package bitfield

import (
	"fmt"
	"reflect"
)

// Pack compacts the tagged fields of the struct x (or *x) into a uint64,
// low field first. Only fields with a `bitfield:"n"` tag participate.
func Pack(x interface{}) (uint64, error) {
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return 0, fmt.Errorf("bitfield: Pack: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield: Pack: negative value %d for field %s", val, field.Name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield: Pack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64(1)<<bits - 1
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield: Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if bitOffset > 64 {
		return 0, fmt.Errorf("bitfield: Pack: total bits %d exceeds 64", bitOffset)
	}
	return packed, nil
}

// Unpack spreads a packed value back into the tagged fields of *x.
func Unpack(packed uint64, x interface{}) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("bitfield: Unpack: expected non-nil pointer, got %v", v.Kind())
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}
		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return fmt.Errorf("bitfield: Unpack: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		mask := uint64(1)<<bits - 1
		raw := (packed >> bitOffset) & mask
		bitOffset += bits

		fieldValue := v.Field(i)
		if !fieldValue.CanSet() {
			return fmt.Errorf("bitfield: Unpack: field %s is not settable", field.Name)
		}
		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(raw != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(raw))
		default:
			return fmt.Errorf("bitfield: Unpack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}
	}
	return nil
}
