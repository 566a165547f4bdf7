package clickhouse

import "time"

// Config holds ClickHouse configuration.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" default:"9000"`
	Database        string        `yaml:"database" default:"edux"`
	User            string        `yaml:"user" default:"default"`
	Password        string        `yaml:"password"`
	Table           string        `yaml:"table" default:"trades"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecTime     time.Duration `yaml:"max_execution_time"`
	AsyncInsert     bool          `yaml:"async_insert"`
}
