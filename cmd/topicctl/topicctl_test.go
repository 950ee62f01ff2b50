package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/infrastructure/di"
	"github.com/VadimShubkin/ii/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	t.Setenv("REDIS_URL", "")
	t.Setenv("MODERATION_FILE", "")
	t.Setenv("IS_LAMBDA", "false")
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("MODERATION_DEFAULT", "queue")
	t.Setenv("MODERATION_TRUSTED_ROLES", "moderator")
}

// useSharedContainer keeps one in-memory container across invocations
func useSharedContainer(t *testing.T) {
	t.Helper()
	setTestEnv(t)
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	shared, done, err := di.InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(done)

	original := newContainer
	newContainer = func(context.Context) (*di.Container, func(), error) {
		return shared, func() {}, nil
	}
	t.Cleanup(func() { newContainer = original })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestImportQueuedThenApproved(t *testing.T) {
	useSharedContainer(t)

	file := filepath.Join(t.TempDir(), "topics.txt")
	require.NoError(t, os.WriteFile(file, []byte("Луна\nСолнце\n"), 0o600))

	out, err := run(t, "--role", "editor", "import", file)
	require.NoError(t, err)
	match := regexp.MustCompile(`queued for moderation: (\S+)`).FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	id := match[1]

	out, err = run(t, "pending", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Total: 1")

	out, err = run(t, "--role", "moderator", "--as", "alice", "pending", "approve", id)
	require.NoError(t, err)
	assert.Contains(t, out, id+" applied by alice")

	_, err = run(t, "--role", "moderator", "pending", "reject", id)
	assert.Error(t, err)

	rootCmd.SetIn(strings.NewReader("Марс\n"))
	defer rootCmd.SetIn(nil)
	out, err = run(t, "--role", "moderator", "import", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 topics")
}

func TestReload(t *testing.T) {
	useSharedContainer(t)

	out, err := run(t, "reload")
	require.NoError(t, err)
	assert.Contains(t, out, "Topic index reloaded")
}

func TestToken(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "topics")

	out, err := run(t, "token", "mod-1", "--roles", "moderator")
	require.NoError(t, err)

	validator, err := auth.NewValidator(auth.Config{SecretKey: "cli-secret", Issuer: "topics"})
	require.NoError(t, err)
	claims, err := validator.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "mod-1", claims.UserID)
	assert.Equal(t, []string{"moderator"}, claims.Roles)
}
