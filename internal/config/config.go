// Package config — процессный слой настроек: подхват .env и то немногое,
// что нужно бинарям до сборки приложения (режим логов, адрес Jaeger).
// Доменная конфигурация живёт в internal/modules/config и использует
// хелперы чтения окружения отсюда.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Debug      bool   // .env: DEBUG (false)
	JaegerHost string // .env: JAEGER_HOST (пусто = трейсинг выключен)
	JaegerPort int    // .env: JAEGER_PORT (6831)
}

// Load подхватывает .env из рабочей директории (если есть) и читает
// процессные настройки. Вызывается бинарями до инициализации логгера,
// чтобы доменный слой дальше видел уже заполненное окружение.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Debug:      BoolFromEnv("DEBUG", false),
		JaegerHost: StrFromEnv("JAEGER_HOST", ""),
		JaegerPort: IntFromEnv("JAEGER_PORT", 6831),
	}
}

// StrFromEnv возвращает значение переменной окружения или def, если она пуста.
func StrFromEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// IntFromEnv читает целое из окружения; нечисловые значения игнорируются.
func IntFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// FloatFromEnv читает float64 из окружения; мусор игнорируется.
func FloatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// BoolFromEnv понимает всё, что разбирает strconv.ParseBool.
func BoolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// DurationFromEnv читает длительность в формате time.ParseDuration;
// def обязан быть валидным — он же и запасной вариант при мусоре.
func DurationFromEnv(key, def string) time.Duration {
	d, err := time.ParseDuration(StrFromEnv(key, def))
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
