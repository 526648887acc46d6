package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flag is a boolean that also accepts the yes/no spelling used by the
// deployment environment (LOG_DEBUG=yes, EMAIL_NOTIFICATIONS=no).
//
// The zero value means "not set", so an explicit no in a config file is
// kept when env-default is applied afterwards.
type Flag string

const (
	FlagYes Flag = "yes"
	FlagNo  Flag = "no"
)

// ParseFlag parses yes/no, on/off, true/false and 1/0, case-insensitively.
// An empty string is no.
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on", "true", "1":
		return FlagYes, nil
	case "no", "n", "off", "false", "0", "":
		return FlagNo, nil
	default:
		return FlagNo, fmt.Errorf("invalid flag value %q: want yes or no", s)
	}
}

// SetValue implements cleanenv.Setter.
func (f *Flag) SetValue(s string) error {
	v, err := ParseFlag(s)
	if err != nil {
		return err
	}
	*f = v

	return nil
}

// UnmarshalYAML accepts both YAML booleans and yes/no strings.
func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	return f.SetValue(value.Value)
}

// Bool reports whether f is set to yes.
func (f Flag) Bool() bool {
	v, err := ParseFlag(string(f))

	return err == nil && v == FlagYes
}
