package main

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tableflow/internal/config"
	"tableflow/internal/loader"
	"tableflow/internal/normalize"
	"tableflow/internal/storage"
)

// Settings are the run-wide knobs shared by every command. They are layered
// defaults < TABLEFLOW_* environment < flags.
type Settings struct {
	Store         string
	DSN           string
	Job           string
	BatchSize     int
	PageSize      int
	ProgressEvery int64

	MetricsBackend string
	PushgatewayURL string
	DogstatsdAddr  string

	v  *viper.Viper
	fs *pflag.FlagSet
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("store", storage.DefaultKind)
	v.SetDefault("dsn", "tableflow.db")
	v.SetDefault("job", "tableflow")
	v.SetDefault("batch-size", loader.DefaultBatchSize)
	v.SetDefault("page-size", normalize.DefaultPageSize)
	v.SetDefault("progress-every", loader.DefaultProgressEvery)
	v.SetDefault("metrics-backend", "none")
	v.SetDefault("pushgateway-url", "http://localhost:9091")
	v.SetDefault("dogstatsd-addr", "127.0.0.1:8125")

	v.SetEnvPrefix("TABLEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// load binds fs and reads the merged values.
func (s *Settings) load(fs *pflag.FlagSet) error {
	if s.v == nil {
		s.v = newViper()
	}
	if err := s.v.BindPFlags(fs); err != nil {
		return err
	}
	s.fs = fs
	s.Store = s.v.GetString("store")
	s.DSN = s.v.GetString("dsn")
	s.Job = s.v.GetString("job")
	s.BatchSize = s.v.GetInt("batch-size")
	s.PageSize = s.v.GetInt("page-size")
	s.ProgressEvery = s.v.GetInt64("progress-every")
	s.MetricsBackend = s.v.GetString("metrics-backend")
	s.PushgatewayURL = s.v.GetString("pushgateway-url")
	s.DogstatsdAddr = s.v.GetString("dogstatsd-addr")
	return nil
}

// StoreConfig is the store selected by --store and --dsn.
func (s *Settings) StoreConfig() storage.Config {
	return storage.Config{Kind: s.Store, DSN: s.DSN}
}

// Overlay applies explicitly set values over a job file. Values left at
// their defaults do not replace what the job declares.
func (s *Settings) Overlay(j *config.Job) {
	set := s.explicit
	if set("store") || j.Store.Kind == "" {
		j.Store.Kind = s.Store
	}
	if set("dsn") || j.Store.DSN == "" {
		j.Store.DSN = s.DSN
	}
	if set("batch-size") || j.Runtime.BatchSize == 0 {
		j.Runtime.BatchSize = s.BatchSize
	}
	if set("page-size") || j.Runtime.PageSize == 0 {
		j.Runtime.PageSize = s.PageSize
	}
	if set("progress-every") || j.Runtime.ProgressEvery == 0 {
		j.Runtime.ProgressEvery = s.ProgressEvery
	}
	if j.Name == "" {
		j.Name = s.Job
	}
}

// explicit reports whether key came from a changed flag or the environment.
// viper's IsSet also counts defaults, so it cannot tell them apart.
func (s *Settings) explicit(key string) bool {
	if s.fs != nil {
		if f := s.fs.Lookup(key); f != nil && f.Changed {
			return true
		}
	}
	_, ok := os.LookupEnv(envKey(key))
	return ok
}

func envKey(key string) string {
	return "TABLEFLOW_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}
