package jobdef

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	DB     *gorm.DB
	MSSQL  *sql.DB
	Logger = zerolog.Nop()
	Redis  *redis.Client
)
