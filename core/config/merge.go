package config

import (
	"reflect"
)

// DeepMerge overlays src onto dst. Both must be pointers to the same type.
// Zero scalars, nil maps and empty slices in src leave dst untouched, so a
// partially filled src works as a set of overrides.
func DeepMerge(dst, src any) {
	dstVal := reflect.ValueOf(dst)
	srcVal := reflect.ValueOf(src)

	if dstVal.Kind() != reflect.Ptr || srcVal.Kind() != reflect.Ptr {
		return
	}
	if dstVal.IsNil() || srcVal.IsNil() || dstVal.Type() != srcVal.Type() {
		return
	}

	overlay(dstVal.Elem(), srcVal.Elem())
}

func overlay(dst, src reflect.Value) {
	if !dst.CanSet() || !src.IsValid() {
		return
	}

	switch dst.Kind() {
	case reflect.Struct:
		for i := 0; i < dst.NumField(); i++ {
			overlay(dst.Field(i), src.Field(i))
		}
	case reflect.Map:
		overlayMap(dst, src)
	case reflect.Slice:
		if src.Len() > 0 {
			dst.Set(src)
		}
	case reflect.Ptr:
		if src.IsNil() {
			return
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		overlay(dst.Elem(), src.Elem())
	default:
		if !isZeroValue(src) {
			dst.Set(src)
		}
	}
}

func overlayMap(dst, src reflect.Value) {
	if src.IsNil() {
		return
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}

	for _, key := range src.MapKeys() {
		srcVal := src.MapIndex(key)
		dstVal := dst.MapIndex(key)

		if !dstVal.IsValid() || srcVal.Kind() != reflect.Struct {
			dst.SetMapIndex(key, srcVal)
			continue
		}

		// Map values are not addressable; merge into a copy.
		merged := reflect.New(dstVal.Type()).Elem()
		merged.Set(dstVal)
		overlay(merged, srcVal)
		dst.SetMapIndex(key, merged)
	}
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}
