/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// DataType is a format of a configuration file.
type DataType string

// Configuration file formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataTypeFromPath picks the format by file extension. Anything but ".json" is read as YAML.
func DataTypeFromPath(path string) DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DataTypeJSON
	}
	return DataTypeYAML
}

// DataProvider gives typed access to configuration values merged from defaults, a file and the environment.
// Getters return errors already wrapped with the full key, see KeyError.
type DataProvider interface {
	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)

	WrapKeyErr(key string, err error) error
}

// KeyError is an error of a particular configuration key.
// Its message looks like "rateLimit.quota: should be positive, got 0".
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// WrapKeyErr binds err to the key. Nil error stays nil.
func WrapKeyErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return &KeyError{Key: key, Err: err}
}
