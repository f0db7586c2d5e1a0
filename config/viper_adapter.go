/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider over viper.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars makes every key overridable by an environment variable.
// With prefix "taskgw" the key "rateLimit.quota" is read from TASKGW_RATELIMIT_QUOTA.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	if err := va.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	if err := va.viper.ReadConfig(reader); err != nil {
		return fmt.Errorf("read %s config: %w", dataType, err)
	}
	return nil
}

func (va *ViperAdapter) GetInt(key string) (int, error) {
	res, err := cast.ToIntE(va.Get(key))
	return res, WrapKeyErr(key, err)
}

func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	res, err := cast.ToFloat64E(va.Get(key))
	return res, WrapKeyErr(key, err)
}

func (va *ViperAdapter) GetString(key string) (string, error) {
	res, err := cast.ToStringE(va.Get(key))
	return res, WrapKeyErr(key, err)
}

func (va *ViperAdapter) GetBool(key string) (bool, error) {
	res, err := cast.ToBoolE(va.Get(key))
	return res, WrapKeyErr(key, err)
}

// GetStringSlice accepts both lists and comma-separated strings, the latter is how
// lists come from environment variables (TASKGW_SERVER_CORS_ALLOWEDORIGINS=https://a,https://b).
// Unset key gives nil.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	val := va.Get(key)
	s, isString := val.(string)
	if !isString {
		if val == nil {
			return nil, nil
		}
		res, err := cast.ToStringSliceE(val)
		return res, WrapKeyErr(key, err)
	}
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res, nil
}

// GetStringFromSet returns the value only if it is one of set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration accepts time.ParseDuration strings and integer nanoseconds. Unset key gives 0.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	val := va.Get(key)
	if val == nil {
		return 0, nil
	}
	res, err := cast.ToDurationE(val)
	return res, WrapKeyErr(key, err)
}

// GetByteSize accepts numbers and human-readable sizes ("1M", "512KiB"). Unset key gives 0.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	var num int64
	switch v := va.Get(key).(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		res, err := ParseByteSize(v)
		return res, WrapKeyErr(key, err)
	case float32, float64:
		num = int64(cast.ToFloat64(v))
	default:
		var err error
		if num, err = cast.ToInt64E(v); err != nil {
			return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for byte size: %T", v))
		}
	}
	if num < 0 {
		return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
	}
	return ByteSize(num), nil
}

func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
