package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB       DBConfig
	Telegram TelegramConfig
	Photo    PhotoConfig
	Session  SessionConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type TelegramConfig struct {
	Token string
}

// PhotoConfig controls the shop-photo verification step of the order flow.
type PhotoConfig struct {
	VerifyRequired bool          // when false the order flow skips the photo step entirely
	MaxAge         time.Duration // maximum allowed age of the EXIF capture timestamp
	ClockSkew      time.Duration // tolerance for capture timestamps slightly in the future
	Dir            string        // where accepted photos are stored
	TempDir        string        // incoming documents are downloaded here before verification
}

type SessionConfig struct {
	IdleTimeout time.Duration // 0 disables idle expiry of in-progress conversations
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     port,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "orderkato"),
		},
		Telegram: TelegramConfig{
			Token: getEnv("TOKEN", ""),
		},
		Photo: PhotoConfig{
			VerifyRequired: getEnvBool("PHOTO_VERIFY_REQUIRED", true),
			MaxAge:         time.Duration(getEnvInt("PHOTO_MAX_AGE_SECONDS", 60)) * time.Second,
			ClockSkew:      time.Duration(getEnvInt("CLOCK_SKEW_SECONDS", 5)) * time.Second,
			Dir:            getEnv("SHOP_IMAGE_DIR", "ShopImage"),
			TempDir:        getEnv("PHOTO_TEMP_DIR", "temp"),
		},
		Session: SessionConfig{
			IdleTimeout: time.Duration(getEnvInt("SESSION_IDLE_SECONDS", 0)) * time.Second,
		},
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
