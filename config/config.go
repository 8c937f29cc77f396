package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Load reads the yaml file at path into the config object and
// validates required fields.
func Load(path string, config interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "fail to open config file")
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(config); err != nil {
		return errors.Wrap(err, "fail to decode config file")
	}

	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	return nil
}
