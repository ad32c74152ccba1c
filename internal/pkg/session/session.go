package session

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"

	"github.com/MartinHagen/Tempora/internal/pkg/cache"
	"github.com/MartinHagen/Tempora/internal/pkg/env"
)

var sessionStore *session.Store

func NewSessionStore() *session.Store {
	// Get Redis client configuration from existing cache setup
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	// Create Redis storage for sessions using database 1 (cache uses DB 0)
	storage := redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
	})

	sessionStore = session.New(session.Config{
		Storage:        storage,
		Expiration:     7 * 24 * time.Hour,
		KeyLookup:      "cookie:tempora_session",
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		CookieSameSite: "Lax",
	})
	return sessionStore
}

// GetSessionStore returns the global session store, initializing it on demand
func GetSessionStore() *session.Store {
	if sessionStore == nil {
		return NewSessionStore()
	}
	return sessionStore
}

// GetSessionValue reads a string value from the current request session
func GetSessionValue(c *fiber.Ctx, key string) string {
	sess, err := GetSessionStore().Get(c)
	if err != nil {
		return ""
	}
	if v, ok := sess.Get(key).(string); ok {
		return v
	}
	return ""
}

// SetSessionValue stores a string value in the current request session
func SetSessionValue(c *fiber.Ctx, key, value string) error {
	sess, err := GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	sess.Set(key, value)
	return sess.Save()
}
