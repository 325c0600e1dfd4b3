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
	"errors"
	"math/big"
	"net"
	"net/netip"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeNativeValuesPassThrough(t *testing.T) {
	c := New()
	for _, v := range []any{nil, "s", true, 1, int64(2), 3.5, []byte("b")} {
		out, err := c.Encode(v)
		if err != nil {
			t.Fatalf("encode %T: %v", v, err)
		}
		if !reflect.DeepEqual(out, v) {
			t.Fatalf("encode %T changed value: %v", v, out)
		}
	}
}

func TestEncodeSpecialTypes(t *testing.T) {
	c := New()
	ts := time.Date(2025, 3, 9, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		in   any
		want string
	}{
		{ts, "2025-03-09T12:30:00Z"},
		{90 * time.Second, "1m30s"},
		{uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{net.ParseIP("10.0.0.1"), "10.0.0.1"},
		{netip.MustParseAddr("192.168.1.1"), "192.168.1.1"},
		{netip.MustParsePrefix("10.0.0.0/8"), "10.0.0.0/8"},
		{regexp.MustCompile(`^a+$`), "^a+$"},
		{big.NewInt(12345678901234567), "12345678901234567"},
	}
	for _, tc := range cases {
		out, err := c.Encode(tc.in)
		if err != nil {
			t.Fatalf("encode %T: %v", tc.in, err)
		}
		if out != tc.want {
			t.Fatalf("encode %T = %v, want %q", tc.in, out, tc.want)
		}
	}
}

func TestEncodeWalksContainers(t *testing.T) {
	c := New()
	in := map[string]any{
		"when": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"tags": []any{time.Minute, "plain"},
	}
	out, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m := out.(map[string]any)
	if m["when"] != "2025-01-01T00:00:00Z" {
		t.Fatalf("when = %v", m["when"])
	}
	tags := m["tags"].([]any)
	if tags[0] != "1m0s" || tags[1] != "plain" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestEncodeUnsupportedType(t *testing.T) {
	c := New()
	if _, err := c.Encode(make(chan int)); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestEncodeJSONAndDecodeJSON(t *testing.T) {
	data, err := EncodeJSON(map[string]any{"d": 2 * time.Hour})
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	var back map[string]string
	if err := DecodeJSON(data, &back); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if back["d"] != "2h0m0s" {
		t.Fatalf("round-trip = %v", back)
	}

	if err := DecodeJSON([]byte("{broken"), &back); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}

func TestDecodeValue(t *testing.T) {
	ts, err := DecodeValue[time.Time]("2025-03-09T12:30:00Z")
	if err != nil {
		t.Fatalf("decode time: %v", err)
	}
	if ts.Hour() != 12 {
		t.Fatalf("hour = %d", ts.Hour())
	}

	d, err := DecodeValue[time.Duration]("90s")
	if err != nil {
		t.Fatalf("decode duration: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("duration = %v", d)
	}

	id, err := DecodeValue[uuid.UUID]("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatalf("decode uuid: %v", err)
	}
	if id.String() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("uuid = %s", id)
	}

	ipnet, err := DecodeValue[*net.IPNet]("10.0.0.0/8")
	if err != nil {
		t.Fatalf("decode cidr: %v", err)
	}
	if ipnet.String() != "10.0.0.0/8" {
		t.Fatalf("cidr = %s", ipnet)
	}
	if _, err := DecodeValue[*net.IPNet]("not-a-cidr"); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for bad cidr, got %v", err)
	}

	if _, err := DecodeValue[time.Time](42); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for non-string, got %v", err)
	}
	if _, err := DecodeValue[struct{ X int }]("x"); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for unknown target, got %v", err)
	}
}

func TestRegisteredEncoderTakesPriority(t *testing.T) {
	c := New()
	c.RegisterEncoder(
		func(v any) bool { _, ok := v.(time.Duration); return ok },
		func(v any) (any, error) { return int64(v.(time.Duration) / time.Millisecond), nil },
	)
	out, err := c.Encode(time.Second)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out != int64(1000) {
		t.Fatalf("custom encoder ignored: %v", out)
	}
}
