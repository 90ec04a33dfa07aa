package config

import "os"

type Config struct {
	MongoURI   string
	MongoDB    string
	RedisAddr  string
	HTTPPort   string
	JWTSecret  string
	HostUser   string
	HostPass   string
	BotRace    bool // serve the offline practice variant with simulated peers
	RaceLength int  // race countdown in seconds
}

func Load() *Config {
	return &Config{
		MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:    getEnv("MONGO_DB", "codearena"),
		RedisAddr:  getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPPort:   getEnv("PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		HostUser:   getEnv("HOST_USERNAME", "admin"),
		HostPass:   getEnv("HOST_PASSWORD", "password123"),
		BotRace:    os.Getenv("PRACTICE_BOTS") == "1",
		RaceLength: 900,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
