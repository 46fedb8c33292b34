package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	// PublicURL is the public bucket origin that media URLs are served from.
	PublicURL string
	// MaxMediaBytes caps a single media download, from the bucket or elsewhere.
	MaxMediaBytes int64
}

type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
}

// Platforms holds the graph/API roots each adapter talks to. Tests point them at local servers.
type Platforms struct {
	InstagramBaseURL string
	FacebookBaseURL  string
	TiktokBaseURL    string
	PinterestBaseURL string
	RequestTimeout   time.Duration
	// RatePerSecond caps outbound calls per adapter.
	RatePerSecond float64
	// InstagramContainerWait is the pause between creating and publishing a media container.
	InstagramContainerWait time.Duration
	TiktokChunkSize        int64
}

type Scheduler struct {
	// Backend is either "asynq" (redis backed) or "timer" (in process).
	Backend           string
	RecurringEvery    time.Duration
	TokenRefreshEvery time.Duration
	RetryEvery        time.Duration
	DueSweepEvery     time.Duration
	RetryWindow       time.Duration
	RetryDelay        time.Duration
	RecurringDelay    time.Duration
	MaxAttempts       int
	WorkerConcurrent  int
	// DistributedLock guards ticks with a redis lock so only one instance runs them.
	DistributedLock bool
}

type Config struct {
	Instagram    OAuthClient
	Tiktok       OAuthClient
	Pinterest    OAuthClient
	PostgresURI  string
	StoreBackend string
	RedisURI     string
	FrontendURL  string
	ListenAddr   string
	LogLevel     string
	R2           R2
	SecretKey    string
	CookieName   string
	Platforms    Platforms
	Scheduler    Scheduler
}

func LoadConfig() *Config {
	return &Config{
		Instagram: OAuthClient{
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
			TokenURL:     getEnv("INSTAGRAM_TOKEN_URL", "https://graph.instagram.com/refresh_access_token"),
		},
		Tiktok: OAuthClient{
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", ""),
			TokenURL:     getEnv("TIKTOK_TOKEN_URL", "https://open.tiktokapis.com/v2/oauth/token/"),
		},
		Pinterest: OAuthClient{
			ClientID:     getEnv("PINTEREST_CLIENT_ID", ""),
			ClientSecret: getEnv("PINTEREST_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("PINTEREST_REDIRECT_URI", ""),
			TokenURL:     getEnv("PINTEREST_TOKEN_URL", "https://api.pinterest.com/v5/oauth/token"),
		},
		PostgresURI:  getEnv("POSTGRES_URI", ""),
		StoreBackend: getEnv("STORE_BACKEND", "postgres"),
		RedisURI:     getEnv("REDIS_URI", ""),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:5173"),
		ListenAddr:   getEnv("LISTEN_ADDR", ":3000"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
			// 512 MiB
			MaxMediaBytes: int64(getInt("MEDIA_MAX_BYTES", 512<<20)),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postflow_session"),
		Platforms: Platforms{
			InstagramBaseURL:       getEnv("INSTAGRAM_BASE_URL", "https://graph.facebook.com/v18.0"),
			FacebookBaseURL:        getEnv("FACEBOOK_BASE_URL", "https://graph.facebook.com/v18.0"),
			TiktokBaseURL:          getEnv("TIKTOK_BASE_URL", "https://open.tiktokapis.com/v2"),
			PinterestBaseURL:       getEnv("PINTEREST_BASE_URL", "https://api.pinterest.com/v5"),
			RequestTimeout:         getDuration("PLATFORM_REQUEST_TIMEOUT", 60*time.Second),
			RatePerSecond:          getFloat("PLATFORM_RATE_PER_SECOND", 5),
			InstagramContainerWait: getDuration("INSTAGRAM_CONTAINER_WAIT", 5*time.Second),
			TiktokChunkSize:        int64(getInt("TIKTOK_CHUNK_SIZE", 10*1024*1024)),
		},
		Scheduler: Scheduler{
			Backend:           schedulerBackend(),
			RecurringEvery:    getDuration("SCHEDULER_RECURRING_EVERY", time.Hour),
			TokenRefreshEvery: getDuration("SCHEDULER_TOKEN_REFRESH_EVERY", 10*time.Minute),
			RetryEvery:        getDuration("SCHEDULER_RETRY_EVERY", 5*time.Minute),
			DueSweepEvery:     getDuration("SCHEDULER_DUE_SWEEP_EVERY", time.Minute),
			RetryWindow:       getDuration("SCHEDULER_RETRY_WINDOW", time.Hour),
			RetryDelay:        getDuration("SCHEDULER_RETRY_DELAY", 5*time.Minute),
			RecurringDelay:    getDuration("SCHEDULER_RECURRING_DELAY", time.Minute),
			MaxAttempts:       getInt("SCHEDULER_MAX_ATTEMPTS", 3),
			WorkerConcurrent:  getInt("SCHEDULER_WORKER_CONCURRENCY", 10),
			DistributedLock:   getBool("SCHEDULER_DISTRIBUTED_LOCK", false),
		},
	}
}

// schedulerBackend picks the durable queue whenever redis is configured.
func schedulerBackend() string {
	if backend := os.Getenv("SCHEDULER_BACKEND"); backend != "" {
		return backend
	}
	if os.Getenv("REDIS_URI") != "" {
		return "asynq"
	}
	return "timer"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
