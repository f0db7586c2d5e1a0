/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ByteSize is a number of bytes written either as an integer or as "1M", "64KiB" and alike.
type ByteSize uint64

// ParseByteSize parses a plain integer or a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	}
	// bytefmt knows "K" and "KiB" but not the k8s-style "Ki".
	v := s
	if len(v) > 2 && strings.HasSuffix(v, "i") && strings.ContainsAny(v[len(v)-2:len(v)-1], "KMGTPE") {
		v = v[:len(v)-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

func (b *ByteSize) UnmarshalText(text []byte) (err error) {
	*b, err = ParseByteSize(string(text))
	return err
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	return b.UnmarshalText([]byte(value.Value))
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// TimeDuration is a time.Duration written either as integer nanoseconds or as "30s", "1m".
// Negative values are rejected.
type TimeDuration time.Duration

// ParseTimeDuration parses integer nanoseconds or a time.ParseDuration string.
func ParseTimeDuration(s string) (TimeDuration, error) {
	dur, err := cast.ToDurationE(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %s", s)
	}
	return TimeDuration(dur), nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

func (d *TimeDuration) UnmarshalText(text []byte) (err error) {
	*d, err = ParseTimeDuration(string(text))
	return err
}

func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	return d.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
