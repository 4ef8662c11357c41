package joinpoint

import (
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReflectEnumerator is the default member-enumeration strategy.
//
// Containers are non-nil pointers to structs and string-keyed maps. Struct
// members come back in field declaration order, map members in sorted key
// order, so traversal is deterministic. Anything that is neither invocable
// nor a container is left out.
type ReflectEnumerator struct{}

// NewEnumerator returns the default reflection-based Enumerator.
func NewEnumerator() *ReflectEnumerator {
	return &ReflectEnumerator{}
}

// Container reports whether target can be traversed for members. A struct
// passed by value is not a container: its members would be copies the binder
// cannot swap.
func (en *ReflectEnumerator) Container(target any) bool {
	if target == nil {
		return false
	}
	if _, ok := target.(*Entry); ok {
		return false
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Ptr:
		return !v.IsNil() && v.Elem().Kind() == reflect.Struct
	case reflect.Map:
		return !v.IsNil() && v.Type().Key().Kind() == reflect.String
	}
	return false
}

// Members lists the weavable members of target. Exported func-typed struct
// fields and map entries holding functions are invocable members; nested
// pointers to structs, addressable struct fields and string-keyed maps are
// sub-containers. publicOnly keeps members whose name starts with an
// upper-case letter; unexported struct fields are skipped regardless, since
// the runtime cannot modify them.
func (en *ReflectEnumerator) Members(target any, publicOnly bool) []Member {
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil
		}
		return structMembers(v.Elem())
	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return nil
		}
		return mapMembers(v, publicOnly)
	}
	return nil
}

func structMembers(s reflect.Value) []Member {
	t := s.Type()
	var members []Member
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := s.Field(i)
		switch fv.Kind() {
		case reflect.Func:
			if fv.IsNil() || !fv.CanAddr() {
				continue
			}
			members = append(members, Member{Name: f.Name, Target: fv.Addr().Interface()})
		case reflect.Ptr:
			if !fv.IsNil() && fv.Elem().Kind() == reflect.Struct {
				members = append(members, Member{Name: f.Name, Target: fv.Interface()})
			}
		case reflect.Struct:
			if fv.CanAddr() {
				members = append(members, Member{Name: f.Name, Target: fv.Addr().Interface()})
			}
		case reflect.Map:
			if !fv.IsNil() && fv.Type().Key().Kind() == reflect.String {
				members = append(members, Member{Name: f.Name, Target: fv.Interface()})
			}
		}
	}
	return members
}

func mapMembers(m reflect.Value, publicOnly bool) []Member {
	keys := make([]string, 0, m.Len())
	for _, k := range m.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	kt := m.Type().Key()
	var members []Member
	for _, key := range keys {
		if publicOnly && !publicName(key) {
			continue
		}
		elem := m.MapIndex(reflect.ValueOf(key).Convert(kt))
		if elem.Kind() == reflect.Interface {
			elem = elem.Elem()
		}
		switch elem.Kind() {
		case reflect.Func:
			if !elem.IsNil() {
				members = append(members, Member{Name: key, Target: MapEntry(m.Interface(), key)})
			}
		case reflect.Ptr:
			if !elem.IsNil() && elem.Elem().Kind() == reflect.Struct {
				members = append(members, Member{Name: key, Target: elem.Interface()})
			}
		case reflect.Map:
			if !elem.IsNil() && elem.Type().Key().Kind() == reflect.String {
				members = append(members, Member{Name: key, Target: elem.Interface()})
			}
		}
	}
	return members
}

// publicName follows the exported-identifier convention: an upper-case first
// letter. Underscore-prefixed names are private by any convention.
func publicName(name string) bool {
	if name == "" || strings.HasPrefix(name, "_") {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
