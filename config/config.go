package config

import (
	_ "embed"
	"os"

	"emperror.dev/errors"
	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultConfig []byte

type UserConfig struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
}

type InitConfig struct {
	Layout          string `toml:"layout"`
	DigestAlgorithm string `toml:"digest"`
	TupleSize       int    `toml:"tuplesize"`
	NumberOfTuples  int    `toml:"numberoftuples"`
}

type PutConfig struct {
	Digest  string      `toml:"digest"`
	Message string      `toml:"message"`
	Fixity  []string    `toml:"fixity"`
	User    *UserConfig `toml:"User"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"accesskey"`
	SecretKey string `toml:"secretkey"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"usessl"`
}

type LockConfig struct {
	// Database is the path of a sqlite lock database shared between
	// processes. Empty selects the in-memory lock.
	Database       string `toml:"database"`
	TimeoutSeconds int    `toml:"timeoutseconds"`
}

type Config struct {
	WorkDir       string      `toml:"workdir"`
	LogLevel      string      `toml:"loglevel"`
	VerifyStaging bool        `toml:"verifystaging"`
	CacheSize     int         `toml:"cachesize"`
	Init          *InitConfig `toml:"Init"`
	Put           *PutConfig  `toml:"Put"`
	S3            *S3Config   `toml:"S3"`
	Lock          *LockConfig `toml:"Lock"`
}

// LoadConfig layers an optional TOML file over the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	var conf = &Config{}
	if err := toml.Unmarshal(defaultConfig, conf); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal default config")
	}
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file '%s'", path)
	}
	if err := toml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "cannot unmarshal config file '%s'", path)
	}
	return conf, nil
}
