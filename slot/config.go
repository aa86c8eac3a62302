package slot

import (
	"errors"
	"strings"
)

type Config struct {
	Name              string `yaml:"name"`
	CreateIfNotExists bool   `yaml:"create_if_not_exists"`
	Temporary         bool   `yaml:"temporary"`
}

type Option func(*Config)

func NewConfig(opts ...Option) Config {
	c := Config{}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

func WithCreateIfNotExists(createIfNotExists bool) Option {
	return func(c *Config) {
		c.CreateIfNotExists = createIfNotExists
	}
}

// WithTemporary makes the slot session-scoped: the server drops it when the
// replication connection that created it closes.
func WithTemporary(temporary bool) Option {
	return func(c *Config) {
		c.Temporary = temporary
	}
}

func (c Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Name) == "" {
		err = errors.Join(err, errors.New("slot name cannot be empty"))
	} else if !validSlotName(c.Name) {
		err = errors.Join(err, errors.New("slot name may only contain lowercase letters, digits and underscores"))
	}

	return err
}

func validSlotName(name string) bool {
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}

	return true
}
