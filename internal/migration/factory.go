package migration

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/moguldesignsjordan/mogul-ai-agent/config"
)

// DatabaseURL 解析配置得到方言与连接串。显式 DSN 优先，否则按字段拼接.
// 运行期的 GORM 连接与迁移共用同一个连接串。
func DatabaseURL(dbCfg config.DatabaseConfig) (DatabaseType, string, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return "", "", fmt.Errorf("invalid database type: %w", err)
	}
	if dbCfg.DSN != "" {
		dsn := dbCfg.DSN
		if dbType == DatabaseTypeMySQL && !strings.Contains(dsn, "multiStatements") {
			dsn = appendQuery(dsn, "multiStatements=true")
		}
		return dbType, dsn, nil
	}
	if dbCfg.Name == "" {
		return "", "", fmt.Errorf("database name (or dsn) is required")
	}
	return dbType, BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode), nil
}

// NewMigratorFromDatabaseConfig 从应用配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, dbURL, err := DatabaseURL(dbCfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		Logger:       logger,
	})
}

// BuildDatabaseURL 按方言拼接连接串；sqlite 的 database 为文件路径
func BuildDatabaseURL(dbType DatabaseType, host string, port int, database, username, password, sslMode string) string {
	switch dbType {
	case DatabaseTypePostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(username, password),
			Host:     fmt.Sprintf("%s:%d", host, port),
			Path:     "/" + database,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String()
	case DatabaseTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			username, password, host, port, database)
	case DatabaseTypeSQLite:
		return fmt.Sprintf("file:%s?mode=rwc", database)
	}
	return ""
}

func appendQuery(dsn, kv string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + kv
	}
	return dsn + "?" + kv
}
