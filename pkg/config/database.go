// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Database drivers accepted in the databases section.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
)

var defaultPorts = map[string]int{
	DriverPostgres: 5432,
	DriverMySQL:    3306,
}

// DatabaseConfig is one named entry of the databases section. Storage
// backends refer to it by name.
//
//	databases:
//	  main:
//	    driver: postgres
//	    host: db.internal
//	    database: waypoint
//	    username: waypoint
//	    password: ${DB_PASSWORD}
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver" jsonschema:"enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3"`

	// Host and Port are ignored for SQLite.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name, or the file path for SQLite.
	Database string `yaml:"database" json:"database"`

	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// SSLMode applies to PostgreSQL only. Default: disable
	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	// MaxConns and MaxIdle size the connection pool. SQLite always uses
	// a single connection.
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"minimum=1,default=25"`
	MaxIdle  int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"minimum=1,default=5"`
}

func (c *DatabaseConfig) isSQLite() bool {
	return c.Driver == DriverSQLite || c.Driver == DriverSQLite3
}

// SetDefaults fills pool sizes, the driver port and the PostgreSQL SSL mode.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		c.Port = defaultPorts[c.Driver]
	}
	if c.Driver == DriverPostgres && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the driver and the fields it needs.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "":
		return fmt.Errorf("driver is required")
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverSQLite3:
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if !c.isSQLite() && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("max_conns and max_idle must be non-negative")
	}
	return nil
}

// DSN builds the connection string for DriverName.
func (c *DatabaseConfig) DSN() string {
	switch {
	case c.Driver == DriverPostgres:
		parts := []string{
			"host=" + c.Host,
			"port=" + strconv.Itoa(c.Port),
			"dbname=" + c.Database,
		}
		if c.Username != "" {
			parts = append(parts, "user="+c.Username)
		}
		if c.Password != "" {
			parts = append(parts, "password="+c.Password)
		}
		if c.SSLMode != "" {
			parts = append(parts, "sslmode="+c.SSLMode)
		}
		return strings.Join(parts, " ")
	case c.Driver == DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		return mc.FormatDSN()
	case c.isSQLite():
		return c.Database
	}
	return ""
}

// DriverName is the database/sql driver to open. The sqlite alias maps to
// go-sqlite3's registered name.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == DriverSQLite {
		return DriverSQLite3
	}
	return c.Driver
}

// Dialect is the SQL flavour checkpoint queries are written for.
func (c *DatabaseConfig) Dialect() string {
	if c.Driver == DriverSQLite3 {
		return DriverSQLite
	}
	return c.Driver
}

var passwordPattern = regexp.MustCompile(`(password=)\S+|(:)[^:@/]+(@)`)

// redactDSN hides passwords in a DSN for log and error output.
func redactDSN(dsn string) string {
	return passwordPattern.ReplaceAllString(dsn, "$1$2***$3")
}
