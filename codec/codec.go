/*
 * Copyright 2025 the strata authors.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package codec

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrSerialization is returned when a value cannot be encoded to or
// decoded from the JSON wire form.
var ErrSerialization = fmt.Errorf("serialization failed")

// EncoderFunc converts one non-native value into a JSON-native form.
type EncoderFunc func(v any) (any, error)

// DecoderFunc converts a raw JSON-native value into the target type.
type DecoderFunc func(target reflect.Type, raw any) (any, error)

type encoderEntry struct {
	match  func(v any) bool
	encode EncoderFunc
}

type decoderEntry struct {
	match  func(t reflect.Type) bool
	decode DecoderFunc
}

// Codec encodes and decodes values that encoding/json does not handle
// natively: timestamps, durations, network addresses, compiled patterns,
// big integers, UUIDs. Handlers form an explicit ordered list of
// (type-predicate, handler) pairs checked in priority order; values with
// no matching handler and no native representation fail with
// ErrSerialization.
type Codec struct {
	encoders []encoderEntry
	decoders []decoderEntry
}

// New returns a codec pre-loaded with the default handler set.
func New() *Codec {
	c := &Codec{}
	c.encoders = defaultEncoders()
	c.decoders = defaultDecoders()
	return c
}

var defaultCodec = New()

// Default returns the shared default codec.
func Default() *Codec { return defaultCodec }

// RegisterEncoder prepends a handler so it takes priority over the
// default set.
func (c *Codec) RegisterEncoder(match func(v any) bool, encode EncoderFunc) {
	c.encoders = append([]encoderEntry{{match: match, encode: encode}}, c.encoders...)
}

// RegisterDecoder prepends a decoder so it takes priority over the
// default set.
func (c *Codec) RegisterDecoder(match func(t reflect.Type) bool, decode DecoderFunc) {
	c.decoders = append([]decoderEntry{{match: match, decode: decode}}, c.decoders...)
}

// Encode transforms a single value into a JSON-native form, walking
// maps and slices. Values already representable by encoding/json pass
// through unchanged.
func (c *Codec) Encode(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, []byte, json.RawMessage:
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			enc, err := c.Encode(val)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			enc, err := c.Encode(val)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	}

	for _, e := range c.encoders {
		if e.match(v) {
			return e.encode(v)
		}
	}

	// Structs and typed containers are left to encoding/json.
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return v, nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return c.Encode(rv.Elem().Interface())
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrSerialization, v)
	}
}

// EncodeJSON encodes a value into JSON bytes.
func (c *Codec) EncodeJSON(v any) ([]byte, error) {
	normalized, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// DecodeJSON decodes JSON bytes into dest.
func (c *Codec) DecodeJSON(data []byte, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// Decode converts a raw JSON-native value into the target type using the
// registered decoder list.
func (c *Codec) Decode(target reflect.Type, raw any) (any, error) {
	if raw != nil && reflect.TypeOf(raw) == target {
		return raw, nil
	}
	for _, d := range c.decoders {
		if d.match(target) {
			return d.decode(target, raw)
		}
	}
	return nil, fmt.Errorf("%w: no decoder for %s", ErrSerialization, target)
}

// DecodeValue converts a raw JSON-native value into T using the default
// codec.
func DecodeValue[T any](raw any) (T, error) {
	var zero T
	out, err := defaultCodec.Decode(reflect.TypeOf(zero), raw)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: decoder produced %T, want %T", ErrSerialization, out, zero)
	}
	return typed, nil
}

// EncodeJSON encodes a value with the default codec.
func EncodeJSON(v any) ([]byte, error) { return defaultCodec.EncodeJSON(v) }

// DecodeJSON decodes JSON bytes with the default codec.
func DecodeJSON(data []byte, dest any) error { return defaultCodec.DecodeJSON(data, dest) }

func matchType[T any]() func(v any) bool {
	return func(v any) bool {
		_, ok := v.(T)
		return ok
	}
}

func defaultEncoders() []encoderEntry {
	return []encoderEntry{
		{matchType[time.Time](), func(v any) (any, error) {
			return v.(time.Time).Format(time.RFC3339Nano), nil
		}},
		{matchType[time.Duration](), func(v any) (any, error) {
			return v.(time.Duration).String(), nil
		}},
		{matchType[uuid.UUID](), func(v any) (any, error) {
			return v.(uuid.UUID).String(), nil
		}},
		{matchType[net.IP](), func(v any) (any, error) {
			return v.(net.IP).String(), nil
		}},
		{matchType[*net.IPNet](), func(v any) (any, error) {
			return v.(*net.IPNet).String(), nil
		}},
		{matchType[netip.Addr](), func(v any) (any, error) {
			return v.(netip.Addr).String(), nil
		}},
		{matchType[netip.Prefix](), func(v any) (any, error) {
			return v.(netip.Prefix).String(), nil
		}},
		{matchType[*regexp.Regexp](), func(v any) (any, error) {
			return v.(*regexp.Regexp).String(), nil
		}},
		{matchType[*big.Int](), func(v any) (any, error) {
			return v.(*big.Int).String(), nil
		}},
		// Last resort before the unsupported error: anything that can
		// describe itself as text.
		{matchType[encoding.TextMarshaler](), func(v any) (any, error) {
			data, err := v.(encoding.TextMarshaler).MarshalText()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			return string(data), nil
		}},
	}
}

func decodeString(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrSerialization, raw)
	}
	return s, nil
}

func defaultDecoders() []decoderEntry {
	return []decoderEntry{
		{func(t reflect.Type) bool { return t == reflect.TypeOf(time.Time{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return ts, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(time.Duration(0)) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return d, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(uuid.UUID{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				id, err := uuid.Parse(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return id, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(net.IP{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				ip := net.ParseIP(s)
				if ip == nil {
					return nil, fmt.Errorf("%w: invalid IP %q", ErrSerialization, s)
				}
				return ip, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(&net.IPNet{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				_, ipnet, err := net.ParseCIDR(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return ipnet, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(netip.Addr{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				addr, err := netip.ParseAddr(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return addr, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(netip.Prefix{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				p, err := netip.ParsePrefix(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return p, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(&regexp.Regexp{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				re, err := regexp.Compile(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
				}
				return re, nil
			}},
		{func(t reflect.Type) bool { return t == reflect.TypeOf(&big.Int{}) },
			func(_ reflect.Type, raw any) (any, error) {
				s, err := decodeString(raw)
				if err != nil {
					return nil, err
				}
				n, ok := new(big.Int).SetString(s, 10)
				if !ok {
					return nil, fmt.Errorf("%w: invalid integer %q", ErrSerialization, s)
				}
				return n, nil
			}},
	}
}
