package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	mysqldsn "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"

	"github.com/BaSui01/agentrelay/config"
)

// DatabaseType 检查点数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// dialect 一种方言的 database/sql 驱动名、内嵌目录与 golang-migrate 驱动
type dialect struct {
	sqlDriver string
	dir       string
	open      func(db *sql.DB, table string) (database.Driver, error)
}

var dialects = map[DatabaseType]dialect{
	DatabaseTypePostgres: {
		sqlDriver: "postgres",
		dir:       "migrations/postgres",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	DatabaseTypeMySQL: {
		sqlDriver: "mysql",
		dir:       "migrations/mysql",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	// modernc 纯 Go 驱动，注册名 "sqlite"，不需要 cgo
	DatabaseTypeSQLite: {
		sqlDriver: "sqlite",
		dir:       "migrations/sqlite",
		open: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
		},
	},
}

func lookupDialect(t DatabaseType) (dialect, error) {
	if d, ok := dialects[t]; ok {
		return d, nil
	}
	return dialect{}, fmt.Errorf("unsupported database type: %s", t)
}

// ParseDatabaseType 大小写不敏感，接受常见别名
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %s", s)
}

// URLFor 把 database 配置段转成 golang-migrate 需要的连接串。
// 用户名与密码会被正确转义；sqlite 的 Name 是文件路径。
func URLFor(t DatabaseType, cfg config.DatabaseConfig) (string, error) {
	switch t {
	case DatabaseTypePostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + cfg.Name,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return u.String(), nil
	case DatabaseTypeMySQL:
		dsn := mysqldsn.NewConfig()
		dsn.User = cfg.User
		dsn.Passwd = cfg.Password
		dsn.Net = "tcp"
		dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		dsn.DBName = cfg.Name
		dsn.ParseTime = true
		// 迁移文件一个文件里有多条语句
		dsn.MultiStatements = true
		return dsn.FormatDSN(), nil
	case DatabaseTypeSQLite:
		if cfg.Name == "" {
			return "", errors.New("sqlite requires database.name as the file path")
		}
		return "file:" + cfg.Name + "?_pragma=foreign_keys(1)", nil
	}
	return "", fmt.Errorf("unsupported database type: %s", t)
}

// migrationFile 000001_create_checkpoints.up.sql → {1, create_checkpoints}
type migrationFile struct {
	version uint
	name    string
}

// embedded 列出方言目录下的 up 迁移，按版本升序
func (d dialect) embedded() ([]migrationFile, error) {
	matches, err := fs.Glob(migrationsFS, d.dir+"/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list embedded migrations: %w", err)
	}
	files := make([]migrationFile, 0, len(matches))
	for _, m := range matches {
		prefix, rest, ok := strings.Cut(strings.TrimSuffix(path.Base(m), ".up.sql"), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: uint(v), name: rest})
	}
	slices.SortFunc(files, func(a, b migrationFile) int { return int(a.version) - int(b.version) })
	return files, nil
}
