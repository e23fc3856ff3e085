package config

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Duration is a time.Duration written as "15s" in every config format.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := sonic.ConfigStd.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		return d.UnmarshalText([]byte(x))
	case float64:
		*d = Duration(time.Duration(x))
		return nil
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
}
