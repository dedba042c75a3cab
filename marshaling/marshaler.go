package marshaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"
)

// ErrUnknownEventType is returned (wrapped) when serializing or deserializing
// an event whose type has not been registered.
var ErrUnknownEventType = errors.New("unknown event type")

// Marshaler serializes domain events to and from their binary representation.
//
// Each event type must be registered under a stable name before it can be
// used. Types that implement [proto.Message] are encoded using the protocol
// buffers binary format, all other types are encoded as JSON.
type Marshaler struct {
	m      sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// Register associates the type of example with a stable event type name.
//
// It panics if either the name or the type is already registered.
func (m *Marshaler) Register(name string, example any) {
	if name == "" {
		panic("event type name must not be empty")
	}

	t := reflect.TypeOf(example)
	if t == nil {
		panic("event type must not be nil")
	}

	m.m.Lock()
	defer m.m.Unlock()

	if existing, ok := m.byName[name]; ok {
		panic(fmt.Sprintf("event type name %q is already registered to %s", name, existing))
	}

	if existing, ok := m.byType[t]; ok {
		panic(fmt.Sprintf("%s is already registered as %q", t, existing))
	}

	if m.byName == nil {
		m.byName = map[string]reflect.Type{}
		m.byType = map[reflect.Type]string{}
	}

	m.byName[name] = t
	m.byType[t] = name
}

// Register associates T with a stable event type name.
func Register[T any](m *Marshaler, name string) {
	var zero T
	m.Register(name, zero)
}

// EventTypeOf returns the registered name of ev's type.
func (m *Marshaler) EventTypeOf(ev any) (string, error) {
	t := reflect.TypeOf(ev)

	m.m.RLock()
	name, ok := m.byType[t]
	m.m.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s is not registered", ErrUnknownEventType, t)
	}

	return name, nil
}

// Serialize returns the event type name and binary representation of ev.
func (m *Marshaler) Serialize(ev any) (string, []byte, error) {
	name, err := m.EventTypeOf(ev)
	if err != nil {
		return "", nil, err
	}

	var data []byte
	if pb, ok := ev.(proto.Message); ok {
		data, err = proto.Marshal(pb)
	} else {
		data, err = json.Marshal(ev)
	}

	if err != nil {
		return "", nil, fmt.Errorf("unable to serialize %q event: %w", name, err)
	}

	return name, data, nil
}

// Deserialize returns the domain event represented by data.
//
// The encoding is determined by the registered type; metadata is unused.
func (m *Marshaler) Deserialize(
	eventType string,
	data []byte,
	metadata map[string]string,
) (any, error) {
	m.m.RLock()
	t, ok := m.byName[eventType]
	m.m.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())

		if pb, ok := ptr.Interface().(proto.Message); ok {
			if err := proto.Unmarshal(data, pb); err != nil {
				return nil, fmt.Errorf("unable to deserialize %q event: %w", eventType, err)
			}
			return pb, nil
		}

		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("unable to deserialize %q event: %w", eventType, err)
		}
		return ptr.Interface(), nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("unable to deserialize %q event: %w", eventType, err)
	}

	return ptr.Elem().Interface(), nil
}
