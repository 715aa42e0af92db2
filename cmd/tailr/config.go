package main

import (
	"flag"
	"os"

	"github.com/drone/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tailrdb/tailr/tailrdb"
	"github.com/tailrdb/tailr/tailrdb/backend/mysql"
)

type serverConfig struct {
	HTTPListenPort int    `yaml:"http_listen_port"`
	LogLevel       string `yaml:"log_level"`
}

type config struct {
	Server   serverConfig   `yaml:"server"`
	Database mysql.Config   `yaml:"database"`
	Store    tailrdb.Config `yaml:"store"`
}

func loadConfig() (*config, error) {
	var (
		configFile string
		expandEnv  bool
	)
	flag.StringVar(&configFile, "config.file", "", "yaml configuration file to load")
	flag.BoolVar(&expandEnv, "config.expand-env", false, "whether to expand environment variables in the config file")
	flag.Parse()

	cfg := &config{
		Server: serverConfig{
			HTTPListenPort: 5000,
			LogLevel:       "info",
		},
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "error reading config file")
		}
		if expandEnv {
			s, err := envsubst.EvalEnv(string(buf))
			if err != nil {
				return nil, errors.Wrap(err, "error expanding env vars in config")
			}
			buf = []byte(s)
		}
		if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
			return nil, errors.Wrap(err, "error parsing config file")
		}
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("no database url configured (set database.url or DATABASE_URL)")
	}

	return cfg, nil
}
