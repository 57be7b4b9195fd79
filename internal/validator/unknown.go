package validator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// UnknownField reports the path of the first key in body that dst's type
// does not declare, e.g. "videos[0].bestScore", or "" when every key is
// known. Types with their own UnmarshalJSON are not inspected. Malformed
// JSON yields "" and is left to the decoder to report.
func UnknownField(body []byte, dst interface{}) string {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return unknownIn(doc, reflect.TypeOf(dst), "")
}

func unknownIn(v interface{}, t reflect.Type, path string) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if reflect.PointerTo(t).Implements(unmarshalerType) {
		return ""
	}

	switch t.Kind() {
	case reflect.Struct:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return ""
		}
		fields := jsonFields(t)
		for _, key := range sortedKeys(obj) {
			ft, ok := lookupField(fields, key)
			if !ok {
				return join(path, key)
			}
			if p := unknownIn(obj[key], ft, join(path, key)); p != "" {
				return p
			}
		}
	case reflect.Slice, reflect.Array:
		arr, ok := v.([]interface{})
		if !ok {
			return ""
		}
		for i, elem := range arr {
			if p := unknownIn(elem, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); p != "" {
				return p
			}
		}
	case reflect.Map:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return ""
		}
		for _, key := range sortedKeys(obj) {
			if p := unknownIn(obj[key], t.Elem(), join(path, key)); p != "" {
				return p
			}
		}
	}
	return ""
}

// jsonFields maps JSON names to field types the way encoding/json sees them,
// flattening untagged embedded structs.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	out := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			et := f.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct {
				for k, v := range jsonFields(et) {
					if _, ok := out[k]; !ok {
						out[k] = v
					}
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f.Type
	}
	return out
}

// lookupField matches exactly first, then case-insensitively like encoding/json.
func lookupField(fields map[string]reflect.Type, key string) (reflect.Type, bool) {
	if ft, ok := fields[key]; ok {
		return ft, true
	}
	for name, ft := range fields {
		if strings.EqualFold(name, key) {
			return ft, true
		}
	}
	return nil, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
