package sqlpool

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/hashicorp/dynamic-datasource-sdk/config"
)

// URL is a parsed JDBC url such as
// jdbc:mysql://127.0.0.1:3306/demo_ds?serverTimezone=UTC.
type URL struct {
	// Subprotocol is the part after "jdbc:", for example "mysql".
	Subprotocol string
	Host        string
	Port        int
	Database    string
	Params      url.Values
}

// ParseURL parses a JDBC url. The "jdbc:" prefix is optional.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty url")
	}

	u, err := url.Parse(strings.TrimPrefix(raw, "jdbc:"))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing subprotocol or host", raw)
	}

	result := &URL{
		Subprotocol: strings.ToLower(u.Scheme),
		Host:        u.Hostname(),
		Database:    strings.TrimPrefix(u.Path, "/"),
		Params:      u.Query(),
	}
	if p := u.Port(); p != "" {
		result.Port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: bad port %q", raw, p)
		}
	}

	return result, nil
}

func (u *URL) addr(defaultPort int) string {
	port := u.Port
	if port == 0 {
		port = defaultPort
	}

	return net.JoinHostPort(u.Host, strconv.Itoa(port))
}

// MySQLConfig translates data source properties into a driver
// configuration. Connector/J parameters with a driver equivalent are
// translated, the rest are dropped.
func MySQLConfig(props config.Properties) (*mysql.Config, error) {
	u, err := ParseURL(jdbcURL(props))
	if err != nil {
		return nil, err
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.addr(3306)
	cfg.DBName = u.Database
	cfg.User = props.String(config.KeyUsername)
	cfg.Passwd = props.String(config.KeyPassword)
	cfg.Params = map[string]string{}

	for key := range u.Params {
		value := u.Params.Get(key)
		switch key {
		case "user":
			if cfg.User == "" {
				cfg.User = value
			}
		case "password":
			if cfg.Passwd == "" {
				cfg.Passwd = value
			}
		case "serverTimezone":
			loc, err := time.LoadLocation(value)
			if err != nil {
				return nil, fmt.Errorf("serverTimezone: %w", err)
			}
			cfg.Loc = loc
			cfg.ParseTime = true
		case "useSSL":
			if strings.EqualFold(value, "false") {
				cfg.TLSConfig = "false"
			} else {
				cfg.TLSConfig = "true"
			}
		case "characterEncoding":
			cfg.Params["charset"] = charset(value)
		case "connectTimeout":
			cfg.Timeout = millis(value)
		case "socketTimeout":
			cfg.ReadTimeout = millis(value)
			cfg.WriteTimeout = cfg.ReadTimeout
		case "allowMultiQueries":
			cfg.MultiStatements = strings.EqualFold(value, "true")
		case "allowPublicKeyRetrieval", "useUnicode":
			// Handled by the driver.
		}
	}

	if d := props.Duration(KeyConnectionTimeout, 0); d > 0 && cfg.Timeout == 0 {
		cfg.Timeout = d
	}

	return cfg, nil
}

func charset(encoding string) string {
	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "")) {
	case "utf8":
		return "utf8mb4"
	case "iso88591":
		return "latin1"
	}

	return strings.ToLower(strings.ReplaceAll(encoding, "-", ""))
}

// PostgresDSN translates data source properties into a connection url
// understood by lib/pq.
func PostgresDSN(props config.Properties) (string, error) {
	u, err := ParseURL(jdbcURL(props))
	if err != nil {
		return "", err
	}

	result := &url.URL{
		Scheme: "postgres",
		Host:   u.addr(5432),
		Path:   "/" + u.Database,
	}

	user := props.String(config.KeyUsername)
	if user == "" {
		user = u.Params.Get("user")
	}
	password := props.String(config.KeyPassword)
	if password == "" {
		password = u.Params.Get("password")
	}
	if user != "" {
		if password != "" {
			result.User = url.UserPassword(user, password)
		} else {
			result.User = url.User(user)
		}
	}

	q := url.Values{}
	for key := range u.Params {
		value := u.Params.Get(key)
		switch key {
		case "ssl":
			if strings.EqualFold(value, "false") {
				q.Set("sslmode", "disable")
			} else {
				q.Set("sslmode", "require")
			}
		case "sslmode":
			q.Set("sslmode", value)
		case "currentSchema":
			q.Set("search_path", value)
		case "ApplicationName", "applicationName":
			q.Set("application_name", value)
		case "connectTimeout", "loginTimeout":
			q.Set("connect_timeout", value)
		}
	}

	if q.Get("connect_timeout") == "" {
		if d := props.Duration(KeyConnectionTimeout, 0); d > 0 {
			secs := int(d.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			q.Set("connect_timeout", strconv.Itoa(secs))
		}
	}

	result.RawQuery = q.Encode()
	return result.String(), nil
}

func jdbcURL(props config.Properties) string {
	if v := props.URL(); v != "" {
		return v
	}

	return props.String(KeyJdbcURL)
}

// millis parses a Connector/J millisecond timeout.
func millis(v string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || ms < 0 {
		return 0
	}

	return time.Duration(ms) * time.Millisecond
}
