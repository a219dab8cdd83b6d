package config

import (
	"os"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string

	// Exam policy. Fixed constants in the original design; externalized here
	// so deployments can tune them without a rebuild.
	SampleSize int
	PassRatio  float64

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Certificate/timestamp proof service (external collaborator).
	EnableCertSync    bool
	ProofServiceURL   string
	ProofTokenURL     string
	ProofClientID     string
	ProofClientSecret string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:     mode,
		HTTPAddr: addr,
		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),

		SampleSize: envInt("EXAM_SAMPLE_SIZE", 5),
		PassRatio:  envFloat("EXAM_PASS_RATIO", 0.8),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://academy.example.com"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),

		EnableCertSync:    envBool("ENABLE_CERT_SYNC", false),
		ProofServiceURL:   os.Getenv("PROOF_SERVICE_URL"),
		ProofTokenURL:     os.Getenv("PROOF_TOKEN_URL"),
		ProofClientID:     os.Getenv("PROOF_CLIENT_ID"),
		ProofClientSecret: os.Getenv("PROOF_CLIENT_SECRET"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil && v > 0 {
		return v
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil && v > 0 && v <= 1 {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
