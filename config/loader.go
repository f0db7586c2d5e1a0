/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader fills configuration sections from a DataProvider.
// Defaults of all sections are registered before any section reads its values,
// so a section may depend on defaults of another one.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that lets environment variables with envVarsPrefix
// override any key.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader over the given DataProvider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// LoadFromPath reads the file at path (format is picked by extension) and fills the sections.
// Empty path means there is no file, and only defaults and environment variables are used.
func (l *Loader) LoadFromPath(path string, cfg Config, cfgs ...Config) error {
	if path == "" {
		return l.Load(cfg, cfgs...)
	}
	return l.LoadFromFile(path, DataTypeFromPath(path), cfg, cfgs...)
}

// LoadFromFile reads the file of the given format and fills the sections.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// LoadFromReader reads data of the given format and fills the sections.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.Load(cfg, cfgs...)
}

// Load fills the sections from what the DataProvider already has.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	all := append([]Config{cfg}, cfgs...)
	for _, c := range all {
		c.SetProviderDefaults(dataProviderFor(c, l.DataProvider))
	}
	for _, c := range all {
		if err := c.Set(dataProviderFor(c, l.DataProvider)); err != nil {
			return err
		}
	}
	return nil
}
