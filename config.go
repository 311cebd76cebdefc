package jobdef

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverMemory  = "memory"
	StoreDriverCatalog = "catalog"
	StoreDriverMSDB    = "msdb"
)

type AppConfig struct {
	Mode        string
	ApiPort     string
	StoreDriver string
	TenantID    string
	NatsURL     string
	// SharedScheduleMinVersion is the server major version from which
	// schedules are shared between jobs
	SharedScheduleMinVersion int
	// CatalogServerVersion is the job server version reported by the catalog store
	CatalogServerVersion int
	VersionCacheTTL      time.Duration
	MainDatabase         struct {
		Host         string
		Port         string
		User         string
		Password     string
		DatabaseName string
		SSLMode      string
	}
	MSSQLDSN  string
	JWTConfig struct {
		Secret string
	}
	RedisConfig struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
}

var config AppConfig

func InitConfig(envfile string) {
	err := godotenv.Load(envfile)
	if err != nil {
		log.Fatal(fmt.Sprintf("Error loading %s file: %s", envfile, err))
	}
	config = AppConfig{
		Mode:                     getEnvOrPanic("RUN_MODE"),
		ApiPort:                  GetEnv("API_PORT", ":8080"),
		StoreDriver:              GetEnv("STORE_DRIVER", StoreDriverMemory),
		TenantID:                 GetEnv("TENANT_ID", "default"),
		NatsURL:                  GetEnv("NATS_URL", ""),
		SharedScheduleMinVersion: getIntEnvOrDefault("SHARED_SCHEDULE_MIN_VERSION", 9),
		CatalogServerVersion:     getIntEnvOrDefault("CATALOG_SERVER_VERSION", 16),
		VersionCacheTTL:          time.Duration(getIntEnvOrDefault("VERSION_CACHE_TTL_SECONDS", 300)) * time.Second,
		JWTConfig: struct {
			Secret string
		}{
			Secret: getEnvOrPanic("JWT_SECRET"),
		},
		RedisConfig: struct {
			Host     string
			Port     string
			Password string
			DB       int
		}{
			Host:     GetEnv("REDIS_HOST", ""),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnvOrDefault("REDIS_DB", 0),
		},
	}

	Logger = initLogger()

	switch config.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverCatalog:
		config.MainDatabase.Host = getEnvOrPanic("DB_HOSTNAME")
		config.MainDatabase.Port = getEnvOrPanic("DB_PORT")
		config.MainDatabase.User = getEnvOrPanic("DB_USERNAME")
		config.MainDatabase.Password = getEnvOrPanic("DB_PASSWORD")
		config.MainDatabase.DatabaseName = getEnvOrPanic("DB_NAME")
		config.MainDatabase.SSLMode = GetEnv("DB_SSL_MODE", "disable")
		DB = connectToPostgres(config.MainDatabase.Host, config.MainDatabase.User, config.MainDatabase.Password, config.MainDatabase.DatabaseName, config.MainDatabase.Port, config.MainDatabase.SSLMode)
	case StoreDriverMSDB:
		config.MSSQLDSN = getEnvOrPanic("MSSQL_DSN")
		MSSQL = connectToSQLServer(config.MSSQLDSN)
	default:
		log.Fatalf("STORE_DRIVER must be one of %s, %s, %s", StoreDriverMemory, StoreDriverCatalog, StoreDriverMSDB)
	}

	if config.RedisConfig.Host != "" {
		Redis = connectToRedis(config.RedisConfig.Host, config.RedisConfig.Port, config.RedisConfig.Password, config.RedisConfig.DB)
	}
}

func GetConfig() AppConfig {
	return config
}

func getEnvOrPanic(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s must be set", key)
	}
	return value
}

func GetEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func connectToPostgres(host string, username string, password string, dbname string, port string, ssl string) *gorm.DB {
	var err error
	var db *gorm.DB
	var conn *sql.DB

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, username, password, dbname, port, ssl)
	if db, err = gorm.Open(postgres.Open(dsn),
		&gorm.Config{
			Logger: logger.New(
				log.New(os.Stdout, "\r\n", log.LstdFlags),
				logger.Config{
					SlowThreshold: 0,
					LogLevel:      logger.Error,
				},
			),
			TranslateError: true,
			NowFunc: func() time.Time {
				return time.Now()
			},
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			}}); err != nil {
		panic(err)
	}
	if conn, err = db.DB(); err != nil {
		panic(err)
	}
	conn.SetMaxIdleConns(10)
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(time.Hour)
	return db
}

func connectToSQLServer(dsn string) *sql.DB {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		panic(err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		panic(fmt.Sprintf("Failed to connect to SQL Server: %v", err))
	}
	return db
}

func initLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
		NoColor:    false,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("  %s  ", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s=", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%s", i)
		},
	}

	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

func connectToRedis(host string, port string, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	return client
}
