// Package stateful implements a Stateful/Expiring capability set:
// per-field lazy cache with dirty tracking, declarative
// preload/changing field sets, and time-based expiry.
//
// Each concrete type registers a declarative field-descriptor table
// via Describe at init(), and the runtime iterates that table —
// interface composition, not reflection over a class hierarchy.
package stateful

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/nyxmedia/grobber/internal/grequest"
)

// Field describes one declared attribute of a Stateful type: how to
// read its current in-memory value, how to write a decoded value back
// (used by FromDocument rehydration), and whether it belongs to
// PRELOAD_ATTRS / CHANGING_ATTRS.
type Field struct {
	Name     string
	Preload  bool
	Changing bool
	// Encode produces the value stored under Name (or Name+"$state"
	// if Special is true) in the serialized document.
	Encode func(owner interface{}) (value interface{}, special bool)
	// Decode writes a deserialized value back onto owner.
	Decode func(owner interface{}, value interface{}) error
}

// Descriptor is the per-type field table, registered once via
// Describe and shared by every instance of that type.
type Descriptor struct {
	Fields []Field
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Descriptor{}
)

// Describe registers the field table for a type identified by
// typeName (conventionally the Go type's name). Must be called from
// an init() func, before any instance is constructed: registration
// is forbidden once instances exist.
func Describe(typeName string, fields []Field) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[typeName]; exists {
		panic("stateful: duplicate Describe for " + typeName)
	}
	registry[typeName] = &Descriptor{Fields: fields}
}

func descriptorFor(typeName string) *Descriptor {
	registryMu.Lock()
	defer registryMu.Unlock()
	d := registry[typeName]
	if d == nil {
		panic("stateful: no Describe registered for " + typeName)
	}
	return d
}

// Base embeds into every Stateful-capable type: holds the backing
// Request, the dirty flag, and the expiry clock for CHANGING_ATTRS.
type Base struct {
	TypeName string
	Req      *grequest.Request

	mu         sync.Mutex
	dirty      bool
	lastUpdate time.Time
	expireTime time.Duration
}

// NewBase constructs a Base bound to req, with the Expiring overlay's
// EXPIRE_TIME (0 disables expiry — a plain Stateful, not Expiring).
func NewBase(typeName string, req *grequest.Request, expireTime time.Duration) Base {
	return Base{TypeName: typeName, Req: req, lastUpdate: time.Now(), expireTime: expireTime}
}

// Dirty reports whether any declared field was mutated since the last
// flush.
func (b *Base) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// MarkDirty sets the dirty flag; called by a field's setter.
func (b *Base) MarkDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = true
}

// ClearDirty resets the dirty flag after a successful flush/upsert.
func (b *Base) ClearDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}

// MaybeExpire implements the Expiring overlay: "on read of a
// CHANGING_ATTR, if now - lastUpdate > EXPIRE_TIME, invalidate all
// CHANGING_ATTRS". invalidate is called once per expiry event with
// the list of changing field names to reset.
func (b *Base) MaybeExpire(owner interface{}, invalidate func(fieldNames []string)) {
	if b.expireTime <= 0 {
		return
	}
	b.mu.Lock()
	expired := time.Since(b.lastUpdate) > b.expireTime
	if expired {
		b.lastUpdate = time.Now()
	}
	b.mu.Unlock()

	if expired {
		d := descriptorFor(b.TypeName)
		var names []string
		for _, f := range d.Fields {
			if f.Changing {
				names = append(names, f.Name)
			}
		}
		invalidate(names)
	}
}

// LastUpdate returns the timestamp of the last expiry reset.
func (b *Base) LastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// State serializes owner's declared fields plus the backing
// Request's state. Special-encoded fields are stored under
// "<name>$state".
func State(owner interface{}, req *grequest.Request, typeName string) (map[string]interface{}, error) {
	d := descriptorFor(typeName)
	data := map[string]interface{}{"req": req.State()}
	for _, f := range d.Fields {
		val, special := f.Encode(owner)
		if val == nil {
			continue
		}
		key := f.Name
		if special {
			key += "$state"
		}
		data[key] = val
	}
	return data, nil
}

// FromDocument rehydrates fields from a previously-serialized document
// onto owner: keys ending in "$state" are routed back through
// Decode.
func FromDocument(owner interface{}, typeName string, doc map[string]interface{}) error {
	d := descriptorFor(typeName)
	byName := make(map[string]Field, len(d.Fields))
	for _, f := range d.Fields {
		byName[f.Name] = f
	}
	for key, value := range doc {
		if key == "req" {
			continue
		}
		name := key
		if len(key) > len("$state") && key[len(key)-len("$state"):] == "$state" {
			name = key[:len(key)-len("$state")]
		}
		f, ok := byName[name]
		if !ok {
			continue
		}
		if err := f.Decode(owner, value); err != nil {
			return errors.Wrapf(err, "decode field %q", name)
		}
	}
	return nil
}

// MarshalJSON is a convenience wrapper for callers that want the raw
// bytes of a document (e.g. for a store.Document blob) via
// goccy/go-json.
func MarshalJSON(doc map[string]interface{}) ([]byte, error) {
	return json.Marshal(doc)
}

// PreloadAttrs forces computation of every field named in names (or
// every declared field if names is empty). compute is supplied by the
// caller since Go has no reflective getattr.
func PreloadAttrs(typeName string, names []string, compute func(fieldName string) error) error {
	d := descriptorFor(typeName)
	if len(names) == 0 {
		for _, f := range d.Fields {
			names = append(names, f.Name)
		}
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(names))
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := compute(name); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// PreloadFieldNames returns the names of fields flagged Preload in
// typeName's descriptor.
func PreloadFieldNames(typeName string) []string {
	d := descriptorFor(typeName)
	var names []string
	for _, f := range d.Fields {
		if f.Preload {
			names = append(names, f.Name)
		}
	}
	return names
}
