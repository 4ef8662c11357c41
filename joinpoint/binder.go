package joinpoint

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
)

// Entry references a single entry of a string-keyed map whose value holds a
// function. Map entries cannot be addressed, so they get their own reference
// type; the binder swaps them with SetMapIndex instead of through a pointer.
type Entry struct {
	m   reflect.Value
	key string
}

// MapEntry builds a reference to m[key] for weaving a single map member.
// The map must be string-keyed; the entry must exist and hold a function at
// bind time.
func MapEntry(m any, key string) *Entry {
	return &Entry{m: reflect.ValueOf(m), key: key}
}

func (e *Entry) slot() (slot, bool) {
	if !e.m.IsValid() || e.m.Kind() != reflect.Map || e.m.IsNil() {
		return nil, false
	}
	kt := e.m.Type().Key()
	if kt.Kind() != reflect.String {
		return nil, false
	}
	k := reflect.ValueOf(e.key).Convert(kt)
	v := e.m.MapIndex(k)
	if !v.IsValid() {
		return nil, false
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, false
	}
	return mapSlot{m: e.m, k: k, display: e.key}, true
}

// slot is a mutable reference cell holding a function value. The two
// implementations cover everything the runtime lets us swap: addressable
// func values (variables and exported struct fields) and map entries.
type slot interface {
	load() reflect.Value
	store(v reflect.Value)
	key() slotKey
	name() string
}

// slotKey identifies a reference cell: the cell's address for addressable
// slots, the map pointer plus entry key for map slots.
type slotKey struct {
	base  uintptr
	entry string
}

type addrSlot struct {
	v reflect.Value
}

func (s addrSlot) load() reflect.Value   { return s.v }
func (s addrSlot) store(v reflect.Value) { s.v.Set(v) }
func (s addrSlot) key() slotKey          { return slotKey{base: s.v.Addr().Pointer()} }
func (s addrSlot) name() string          { return "" }

type mapSlot struct {
	m       reflect.Value
	k       reflect.Value
	display string
}

func (s mapSlot) load() reflect.Value {
	v := s.m.MapIndex(s.k)
	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	return v
}

func (s mapSlot) store(v reflect.Value) { s.m.SetMapIndex(s.k, v) }
func (s mapSlot) key() slotKey          { return slotKey{base: s.m.Pointer(), entry: s.display} }
func (s mapSlot) name() string          { return s.display }

// resolveSlot maps a target reference onto its mutable cell. Bare function
// values resolve to nothing: they are copies the runtime gives us no way to
// swap.
func resolveSlot(target any) (slot, bool) {
	if e, ok := target.(*Entry); ok {
		return e.slot()
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		elem := v.Elem()
		if elem.Kind() == reflect.Func && elem.CanSet() {
			return addrSlot{v: elem}, true
		}
	}
	return nil, false
}

// ReflectBinder intercepts calls by swapping function values in place.
//
// Identity (and with it the advice chain) follows the function value: slots
// holding copies of one value share one joinpoint, while distinct closures
// are distinct values and get joinpoints of their own, even when they come
// from one literal. Unbinding a joinpoint restores every reference bound to
// it.
type ReflectBinder struct {
	mu           sync.Mutex
	bySlot       map[slotKey]*binding
	byID         map[ID][]*binding
	interceptors map[uintptr]int
}

type binding struct {
	id          ID
	s           slot
	name        string
	original    reflect.Value
	interceptor reflect.Value
}

// NewBinder returns the default reflection-based Binder.
func NewBinder() *ReflectBinder {
	return &ReflectBinder{
		bySlot:       make(map[slotKey]*binding),
		byID:         make(map[ID][]*binding),
		interceptors: make(map[uintptr]int),
	}
}

// Bind intercepts target, routing calls through dispatch. Re-binding an
// already-bound reference returns the existing ID without stacking a second
// interceptor. References holding copies of one function value share one
// ID.
func (b *ReflectBinder) Bind(target any, dispatch Dispatcher) (ID, error) {
	if dispatch == nil {
		return 0, fmt.Errorf("%w: nil dispatcher", ErrNotBindable)
	}
	s, ok := resolveSlot(target)
	if !ok {
		if b.Invocable(target) {
			return 0, fmt.Errorf("%w: function value is not addressable (pass a pointer to the variable holding it)", ErrNotBindable)
		}
		return 0, fmt.Errorf("%w: %T is not a function reference", ErrNotBindable, target)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if bd, ok := b.bySlot[s.key()]; ok {
		return bd.id, nil
	}

	original := s.load()
	if !original.IsValid() || original.Kind() != reflect.Func || original.IsNil() {
		return 0, fmt.Errorf("%w: reference does not hold a function", ErrNotBindable)
	}
	// load() aliases addressable slots: snapshot the value now, or the
	// interceptor stored below would read itself back through the slot and
	// recurse on the first call.
	original = reflect.ValueOf(original.Interface())
	if b.interceptors[original.Pointer()] > 0 {
		return 0, fmt.Errorf("%w: reference holds a copy of another bound joinpoint's interceptor", ErrNotBindable)
	}

	id := ID(original.Pointer())
	name := s.name()
	if name == "" {
		name = funcName(original)
	}
	interceptor := makeInterceptor(id, name, original, dispatch)
	s.store(interceptor)

	bd := &binding{id: id, s: s, name: name, original: original, interceptor: interceptor}
	b.bySlot[s.key()] = bd
	b.byID[id] = append(b.byID[id], bd)
	b.interceptors[interceptor.Pointer()]++
	return id, nil
}

// Unbind restores every reference of the joinpoint target denotes. Unknown
// targets and repeated unbinds are no-ops.
func (b *ReflectBinder) Unbind(target any) error {
	s, ok := resolveSlot(target)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.identity(s); ok {
		b.release(id)
	}
	return nil
}

// Bound reports whether target denotes a bound joinpoint. A reference that
// still holds the original function resolves to the binding of its value, so
// sibling references of a bound joinpoint count as bound.
func (b *ReflectBinder) Bound(target any) (ID, bool) {
	s, ok := resolveSlot(target)
	if !ok {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity(s)
}

// Name reports the name recorded when target's joinpoint was bound. A bound
// slot holds the interceptor, whose value no longer carries the original's
// name; the recorded name keeps name-based matching stable for the lifetime
// of the binding. Unbound targets report false.
func (b *ReflectBinder) Name(target any) (string, bool) {
	s, ok := resolveSlot(target)
	if !ok {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bd, ok := b.bySlot[s.key()]; ok {
		return bd.name, true
	}
	if id, ok := b.identity(s); ok {
		if bds := b.byID[id]; len(bds) > 0 {
			return bds[0].name, true
		}
	}
	return "", false
}

// Invocable reports whether target refers to a callable: a func value, a
// pointer to one, or a map entry holding one.
func (b *ReflectBinder) Invocable(target any) bool {
	if target == nil {
		return false
	}
	if e, ok := target.(*Entry); ok {
		_, ok := e.slot()
		return ok
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Func:
		return !v.IsNil()
	case reflect.Ptr:
		return !v.IsNil() && v.Elem().Kind() == reflect.Func && !v.Elem().IsNil()
	}
	return false
}

// identity resolves a slot to its joinpoint. Caller holds mu.
func (b *ReflectBinder) identity(s slot) (ID, bool) {
	if bd, ok := b.bySlot[s.key()]; ok {
		return bd.id, true
	}
	v := s.load()
	if v.IsValid() && v.Kind() == reflect.Func && !v.IsNil() {
		id := ID(v.Pointer())
		if _, ok := b.byID[id]; ok {
			return id, true
		}
	}
	return 0, false
}

// release restores all references of id and forgets the binding. Caller
// holds mu.
func (b *ReflectBinder) release(id ID) {
	for _, bd := range b.byID[id] {
		bd.s.store(bd.original)
		delete(b.bySlot, bd.s.key())
		ptr := bd.interceptor.Pointer()
		if b.interceptors[ptr]--; b.interceptors[ptr] <= 0 {
			delete(b.interceptors, ptr)
		}
	}
	delete(b.byID, id)
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// makeInterceptor builds the replacement function: it boxes the arguments,
// hands the call to dispatch, and maps the chain's results back onto the
// intercepted signature.
func makeInterceptor(id ID, name string, original reflect.Value, dispatch Dispatcher) reflect.Value {
	t := original.Type()
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		call := NewCall(id, name, args, func(args []any) ([]any, error) {
			return invokeFunc(original, args)
		})
		results, err := dispatch(call)
		return packResults(t, name, results, err)
	})
}

// invokeFunc calls fn with boxed arguments, splitting the declared trailing
// error return onto the error path.
func invokeFunc(fn reflect.Value, args []any) ([]any, error) {
	t := fn.Type()
	if len(args) != t.NumIn() {
		panic(fmt.Sprintf("joinpoint %s: call has %d arguments, signature wants %d", funcName(fn), len(args), t.NumIn()))
	}
	in := make([]reflect.Value, len(args))
	for i := range args {
		in[i] = toValue(args[i], t.In(i))
	}
	var out []reflect.Value
	if t.IsVariadic() {
		out = fn.CallSlice(in)
	} else {
		out = fn.Call(in)
	}
	n := t.NumOut()
	var err error
	if n > 0 && t.Out(n-1) == errType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, err
}

// packResults maps the chain's ([]any, error) back onto the full output list
// of the intercepted signature. An error with no error return to carry it
// panics at the interception boundary, the closest Go gets to an unchecked
// exception.
func packResults(t reflect.Type, name string, results []any, err error) []reflect.Value {
	n := t.NumOut()
	hasErr := n > 0 && t.Out(n-1) == errType
	if err != nil && !hasErr {
		panic(err)
	}
	want := n
	if hasErr {
		want--
	}
	if len(results) != want {
		if err == nil {
			panic(fmt.Sprintf("joinpoint %s: advice chain produced %d results, signature wants %d", name, len(results), want))
		}
		// error path: the conventional `return nil, err` zero-fills the rest
		results = make([]any, want)
	}
	out := make([]reflect.Value, n)
	for i := 0; i < want; i++ {
		out[i] = toValue(results[i], t.Out(i))
	}
	if hasErr {
		ev := reflect.New(errType).Elem()
		if err != nil {
			ev.Set(reflect.ValueOf(err))
		}
		out[n-1] = ev
	}
	return out
}

// toValue adapts a boxed value to the wanted type, converting where the
// types allow it (int widths and the like). nil becomes the zero value.
func toValue(a any, want reflect.Type) reflect.Value {
	if a == nil {
		return reflect.Zero(want)
	}
	v := reflect.ValueOf(a)
	switch {
	case v.Type().AssignableTo(want):
		return v
	case v.Type().ConvertibleTo(want):
		return v.Convert(want)
	}
	panic(fmt.Sprintf("joinpoint: value of type %v is not assignable to %v", v.Type(), want))
}

func funcName(fn reflect.Value) string {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return ""
	}
	return baseName(f.Name())
}
