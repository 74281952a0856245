package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

// Credential group names, as they appear in the credentials file
const (
	GroupMySQL   = "mysql"
	GroupCloud   = "cloud"
	GroupTwitter = "twitter"
)

// Database drivers accepted by mysql.driver
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Group is the part shared by every credential group. Missing lists the
// fields that were absent or malformed; a group is usable only when it is empty.
type Group struct {
	Usable  bool     `json:"usable"`
	Missing []string `json:"missing,omitempty"`
}

// MySQLCredentials locate the measurement database
type MySQLCredentials struct {
	Group
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Pass     string `json:"-"`
	Database string `json:"database"`
}

// Equal reports whether both describe the same connection
func (m MySQLCredentials) Equal(o MySQLCredentials) bool {
	return m.Usable == o.Usable &&
		m.Driver == o.Driver &&
		m.Host == o.Host &&
		m.Port == o.Port &&
		m.User == o.User &&
		m.Pass == o.Pass &&
		m.Database == o.Database
}

// CloudCredentials authenticate the remote upload endpoint
type CloudCredentials struct {
	Group
	URL  string `json:"url"`
	User string `json:"user"`
	Pass string `json:"-"`
}

// TwitterCredentials gate the daily summary. Timezone is optional.
type TwitterCredentials struct {
	Group
	ConsumerKey       string `json:"-"`
	ConsumerSecret    string `json:"-"`
	AccessToken       string `json:"-"`
	AccessTokenSecret string `json:"-"`
	Timezone          string `json:"timezone,omitempty"`
}

// Credentials is an immutable snapshot of the credentials file
type Credentials struct {
	MySQL   MySQLCredentials   `json:"mysql"`
	Cloud   CloudCredentials   `json:"cloud"`
	Twitter TwitterCredentials `json:"twitter"`
	ModTime time.Time          `json:"mod_time"`
	Source  string             `json:"source"`
}

// Usable returns the usable flag of each group keyed by group name
func (c *Credentials) Usable() map[string]bool {
	return map[string]bool{
		GroupMySQL:   c.MySQL.Usable,
		GroupCloud:   c.Cloud.Usable,
		GroupTwitter: c.Twitter.Usable,
	}
}

// Regressions names the groups usable in cur but not in c, in sorted order
func (c *Credentials) Regressions(cur *Credentials) []string {
	if cur == nil {
		return nil
	}
	var lost []string
	now := c.Usable()
	for group, ok := range cur.Usable() {
		if ok && !now[group] {
			lost = append(lost, group)
		}
	}
	sort.Strings(lost)
	return lost
}

// NoWorseThan reports whether c keeps every group that cur had usable
func (c *Credentials) NoWorseThan(cur *Credentials) bool {
	return len(c.Regressions(cur)) == 0
}

// Empty returns a snapshot with every group unusable
func Empty(source string) *Credentials {
	return &Credentials{
		MySQL:   MySQLCredentials{Group: Group{Missing: []string{GroupMySQL}}},
		Cloud:   CloudCredentials{Group: Group{Missing: []string{GroupCloud}}},
		Twitter: TwitterCredentials{Group: Group{Missing: []string{GroupTwitter}}},
		Source:  source,
	}
}

// LoadCredentials reads and parses a credentials file. The returned snapshot is
// valid even when err is non-nil; it then has every group unusable.
func LoadCredentials(path string) (*Credentials, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Empty(path), fmt.Errorf("unable to stat credentials file %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(path), fmt.Errorf("unable to read credentials file %s: %w", path, err)
	}
	creds, err := ParseCredentials(data, info.ModTime())
	creds.Source = path
	return creds, err
}

// ParseCredentials decodes each group independently. A bad group leaves the
// others intact; malformed JSON leaves every group unusable and returns an error.
func ParseCredentials(data []byte, modTime time.Time) (*Credentials, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		c := Empty("")
		c.ModTime = modTime
		return c, fmt.Errorf("malformed credentials: %w", err)
	}

	c := &Credentials{ModTime: modTime}

	mysql := newSection(sections[GroupMySQL], GroupMySQL)
	c.MySQL.Host = mysql.required("host")
	c.MySQL.User = mysql.required("user")
	c.MySQL.Pass = mysql.required("pass")
	c.MySQL.Database = mysql.required("database")
	c.MySQL.Driver = mysql.optional("driver", DriverMySQL)
	switch c.MySQL.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		mysql.missing = append(mysql.missing, "driver")
	}
	c.MySQL.Port = mysql.port("port", defaultPort(c.MySQL.Driver))
	c.MySQL.Group = mysql.group()

	cloud := newSection(sections[GroupCloud], GroupCloud)
	c.Cloud.URL = cloud.required("url")
	c.Cloud.User = cloud.required("user")
	c.Cloud.Pass = cloud.required("pass")
	c.Cloud.Group = cloud.group()

	twitter := newSection(sections[GroupTwitter], GroupTwitter)
	c.Twitter.ConsumerKey = twitter.required("consumerkey")
	c.Twitter.ConsumerSecret = twitter.required("consumersecret")
	c.Twitter.AccessToken = twitter.required("accesstoken")
	c.Twitter.AccessTokenSecret = twitter.required("accesstokensecret")
	c.Twitter.Timezone = twitter.optional("timezone", "")
	if c.Twitter.Timezone != "" {
		if _, err := time.LoadLocation(c.Twitter.Timezone); err != nil {
			twitter.missing = append(twitter.missing, "timezone")
		}
	}
	c.Twitter.Group = twitter.group()

	return c, nil
}

func defaultPort(driver string) int {
	switch driver {
	case DriverPostgres:
		return 5432
	case DriverSQLite:
		return 0
	default:
		return 3306
	}
}

// section collects the fields of one group and what was wrong with them
type section struct {
	fields  map[string]json.RawMessage
	missing []string
}

func newSection(raw json.RawMessage, name string) *section {
	s := &section{}
	if len(raw) == 0 {
		s.missing = []string{name}
		return s
	}
	// a JSON null decodes without error and leaves fields nil
	if err := json.Unmarshal(raw, &s.fields); err != nil || s.fields == nil {
		s.fields = nil
		s.missing = []string{name}
	}
	return s
}

// absent reports whether the whole group is missing
func (s *section) absent() bool {
	return s.fields == nil
}

func (s *section) required(key string) string {
	if s.absent() {
		return ""
	}
	var v string
	raw, ok := s.fields[key]
	if !ok || json.Unmarshal(raw, &v) != nil || v == "" {
		s.missing = append(s.missing, key)
		return ""
	}
	return v
}

func (s *section) optional(key, def string) string {
	if s.absent() {
		return def
	}
	raw, ok := s.fields[key]
	if !ok {
		return def
	}
	var v string
	if json.Unmarshal(raw, &v) != nil {
		s.missing = append(s.missing, key)
		return def
	}
	if v == "" {
		return def
	}
	return v
}

// port accepts a JSON number or a numeric string
func (s *section) port(key string, def int) int {
	if s.absent() {
		return def
	}
	raw, ok := s.fields[key]
	if !ok {
		return def
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 && n < 65536 {
		return n
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if n, err := strconv.Atoi(str); err == nil && n > 0 && n < 65536 {
			return n
		}
	}
	s.missing = append(s.missing, key)
	return def
}

func (s *section) group() Group {
	return Group{Usable: len(s.missing) == 0, Missing: s.missing}
}
