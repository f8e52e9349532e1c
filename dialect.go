package ygggo_geopool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/XSAM/otelsql"
	mysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const probeQuery = "SELECT 1"

// dialect binds a driver to the statements the manager issues itself.
type dialect struct {
	name       string
	driverName string
	// connector builds a driver.Connector with credentials and dial settings.
	// nil means sql.Open(driverName, target).
	connector      func(cfg Config, target string) (driver.Connector, error)
	sessionTimeout func(d time.Duration) string
}

func dialectFor(driverName string) dialect {
	switch driverName {
	case "pgx", "postgres", "cockroachdb":
		return dialect{
			name:           "cockroachdb",
			driverName:     "pgx",
			connector:      pgxConnector,
			sessionTimeout: setStatementTimeout,
		}
	case "mysql":
		return dialect{
			name:       "mysql",
			driverName: "mysql",
			connector:  mysqlConnector,
			sessionTimeout: func(d time.Duration) string {
				return fmt.Sprintf("SET SESSION max_execution_time = %d", d.Milliseconds())
			},
		}
	case "sqlite":
		return dialect{
			name:       "sqlite",
			driverName: "sqlite",
			sessionTimeout: func(d time.Duration) string {
				return fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds())
			},
		}
	default:
		return dialect{
			name:           driverName,
			driverName:     driverName,
			sessionTimeout: setStatementTimeout,
		}
	}
}

func setStatementTimeout(d time.Duration) string {
	return fmt.Sprintf("SET statement_timeout = %d", d.Milliseconds())
}

// open returns a lazily connecting *sql.DB for the region.
func (d dialect) open(cfg Config, region Region, otelOpts []otelsql.Option) (*sql.DB, error) {
	if d.connector == nil {
		if otelOpts != nil {
			return otelsql.Open(d.driverName, region.Target, otelOpts...)
		}
		return sql.Open(d.driverName, region.Target)
	}
	c, err := d.connector(cfg, region.Target)
	if err != nil {
		return nil, fmt.Errorf("%s connector for region %s: %w", d.name, region.Name, err)
	}
	if otelOpts != nil {
		return otelsql.OpenDB(c, otelOpts...), nil
	}
	return sql.OpenDB(c), nil
}

func pgxConnector(cfg Config, target string) (driver.Connector, error) {
	cc, err := pgxConfig(cfg, target)
	if err != nil {
		return nil, err
	}
	return stdlib.GetConnector(*cc), nil
}

// pgxConfig parses target and applies the pool settings. Credentials written
// in the target take precedence over Config.Username and Config.Password.
func pgxConfig(cfg Config, target string) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(target)
	if err != nil {
		return nil, err
	}
	if !pgTargetHasUser(target) {
		cc.User = cfg.Username
	}
	if cc.Password == "" && cfg.Password != "" {
		cc.Password = cfg.Password
	}
	if cfg.Pool.AcquireTimeout > 0 {
		cc.ConnectTimeout = cfg.Pool.AcquireTimeout
	}
	dialer := &net.Dialer{Timeout: cfg.Pool.AcquireTimeout, KeepAlive: cfg.Pool.KeepAlive}
	cc.DialFunc = dialer.DialContext
	return cc, nil
}

// pgTargetHasUser reports whether a URL or keyword/value target names a user.
// pgx fills in the OS user when none is given, so the parsed config cannot tell.
func pgTargetHasUser(target string) bool {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		u, err := url.Parse(target)
		return err == nil && u.User != nil && u.User.Username() != ""
	}
	for _, field := range strings.Fields(target) {
		if strings.HasPrefix(field, "user=") && len(field) > len("user=") {
			return true
		}
	}
	return false
}

func mysqlConnector(cfg Config, target string) (driver.Connector, error) {
	mc, err := mysqlConfig(cfg, target)
	if err != nil {
		return nil, err
	}
	return mysql.NewConnector(mc)
}

// mysqlConfig parses target and applies the pool settings. Credentials written
// in the target take precedence over Config.Username and Config.Password.
func mysqlConfig(cfg Config, target string) (*mysql.Config, error) {
	mc, err := mysql.ParseDSN(target)
	if err != nil {
		return nil, err
	}
	if mc.User == "" {
		mc.User = cfg.Username
	}
	if mc.Passwd == "" && cfg.Password != "" {
		mc.Passwd = cfg.Password
	}
	mc.Timeout = cfg.Pool.AcquireTimeout
	if mc.Net == "tcp" && cfg.Pool.KeepAlive > 0 {
		mc.Net = registerKeepAliveNet(cfg.Pool.KeepAlive)
	}
	return mc, nil
}

var keepAliveNets sync.Map

// registerKeepAliveNet registers a mysql dial network whose TCP keepalive
// period is ka. Registration happens once per distinct period.
func registerKeepAliveNet(ka time.Duration) string {
	name := fmt.Sprintf("tcp+keepalive%d", ka.Milliseconds())
	if _, loaded := keepAliveNets.LoadOrStore(name, struct{}{}); !loaded {
		mysql.RegisterDialContext(name, func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{KeepAlive: ka}
			return d.DialContext(ctx, "tcp", addr)
		})
	}
	return name
}
