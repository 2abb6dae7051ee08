// Package envconfig resolves server configuration from AIDE_* environment
// variables. Every accessor reads the environment on each call so tests can
// override values with t.Setenv.
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Var returns an environment variable, stripped of surrounding quotes and
// whitespace.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Host returns the scheme and host the server binds to.
// Configurable via AIDE_HOST. Default: http://127.0.0.1:8317
func Host() *url.URL {
	defaultPort := "8317"

	s := Var("AIDE_HOST")
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// Models returns the directory holding the vision-language model files
// (model.onnx plus tokenizer.json).
// Configurable via AIDE_MODELS. Default: $HOME/.aide/models
func Models() string {
	if s := Var("AIDE_MODELS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".aide", "models")
	}
	return filepath.Join(home, ".aide", "models")
}

// PoseModel returns the path of the pose estimation model file.
// Configurable via AIDE_POSE_MODEL. Default: <models>/pose.onnx
func PoseModel() string {
	if s := Var("AIDE_POSE_MODEL"); s != "" {
		return s
	}
	return filepath.Join(Models(), "pose.onnx")
}

// Uploads returns the directory uploaded media is written to and served
// from. Configurable via AIDE_UPLOADS. Default: ./uploads
func Uploads() string {
	if s := Var("AIDE_UPLOADS"); s != "" {
		return s
	}
	return "uploads"
}

// MaxNewTokens returns the generation token budget per request.
// Configurable via AIDE_MAX_NEW_TOKENS. Default: 2048
func MaxNewTokens() int {
	if s := Var("AIDE_MAX_NEW_TOKENS"); s != "" {
		if n, err := strconv.Atoi(s); err != nil || n <= 0 {
			slog.Warn("invalid AIDE_MAX_NEW_TOKENS, using default", "value", s)
		} else {
			return n
		}
	}
	return 2048
}

// AllowedOrigins returns the origins permitted to talk to the server.
// Configurable via AIDE_ORIGINS (comma separated); localhost origins are
// always included for the desktop shell.
func AllowedOrigins() (origins []string) {
	if s := Var("AIDE_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
		"tauri://*",
	)

	return origins
}

// LogLevel returns the slog level.
// Configurable via AIDE_DEBUG: 0/false = INFO (default), 1/true = DEBUG.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("AIDE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}
