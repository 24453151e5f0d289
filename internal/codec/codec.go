// Package codec encodes computed values for the view computation cache.
//
// Every encoded payload is framed with the stable tag of the codec that
// produced it, so a reader decodes it without knowing the writer's
// configuration:
//
//	uvarint(len(tag)) | tag | body
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"github.com/zclconf/go-cty/cty/msgpack"
)

const (
	TagJSON    = "cty-json"
	TagMsgpack = "cty-msgpack"
)

var (
	// ErrUnknownTag is returned when no codec is registered for a tag.
	ErrUnknownTag = errors.New("unknown codec tag")
	// ErrMalformedFrame is returned when a payload has no valid tag frame.
	ErrMalformedFrame = errors.New("malformed codec frame")
)

// Codec converts values to and from bytes.
type Codec interface {
	Tag() string
	Marshal(v cty.Value) ([]byte, error)
	Unmarshal(data []byte) (cty.Value, error)
}

// Registry maps stable tags to codecs. It is populated at startup and read
// concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Default returns a registry holding the built-in codecs.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register(JSON{})
	_ = r.Register(Msgpack{})
	return r
}

// Register adds c. Registering a tag twice is an error.
func (r *Registry) Register(c Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[c.Tag()]; ok {
		return fmt.Errorf("codec with tag '%s' already registered", c.Tag())
	}
	r.codecs[c.Tag()] = c
	return nil
}

// Lookup returns the codec registered for tag.
func (r *Registry) Lookup(tag string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return c, nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codecs))
	for tag := range r.codecs {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Encode marshals v with the codec registered for tag and frames the result.
func (r *Registry) Encode(tag string, v cty.Value) ([]byte, error) {
	c, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	body, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode with %s: %w", tag, err)
	}
	out := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(tag)+len(body)), uint64(len(tag)))
	out = append(out, tag...)
	return append(out, body...), nil
}

// Decode reads the tag frame of data and unmarshals the body with the
// matching codec.
func (r *Registry) Decode(data []byte) (cty.Value, error) {
	tag, body, err := split(data)
	if err != nil {
		return cty.NilVal, err
	}
	c, err := r.Lookup(tag)
	if err != nil {
		return cty.NilVal, err
	}
	v, err := c.Unmarshal(body)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode with %s: %w", tag, err)
	}
	return v, nil
}

func split(data []byte) (string, []byte, error) {
	n, read := binary.Uvarint(data)
	if read <= 0 || uint64(len(data)-read) < n {
		return "", nil, ErrMalformedFrame
	}
	end := read + int(n)
	return string(data[read:end]), data[end:], nil
}

// JSON encodes values with cty's JSON encoding, including their type.
type JSON struct{}

func (JSON) Tag() string { return TagJSON }

func (JSON) Marshal(v cty.Value) ([]byte, error) {
	return ctyjson.Marshal(v, cty.DynamicPseudoType)
}

func (JSON) Unmarshal(data []byte) (cty.Value, error) {
	return ctyjson.Unmarshal(data, cty.DynamicPseudoType)
}

// Msgpack encodes values with cty's msgpack encoding, including their type.
type Msgpack struct{}

func (Msgpack) Tag() string { return TagMsgpack }

func (Msgpack) Marshal(v cty.Value) ([]byte, error) {
	return msgpack.Marshal(v, cty.DynamicPseudoType)
}

func (Msgpack) Unmarshal(data []byte) (cty.Value, error) {
	return msgpack.Unmarshal(data, cty.DynamicPseudoType)
}
