package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, splitList(" https://a.example.com, ,https://b.example.com "))
	assert.Empty(t, splitList(""))
}

func TestCorsConfig(t *testing.T) {
	opts := CorsConfig([]string{"https://app.example.com"}, false)

	assert.Contains(t, opts.AllowedOrigins, "http://localhost:5173")
	assert.Contains(t, opts.AllowedOrigins, "https://app.example.com")
	assert.True(t, opts.AllowCredentials)
	assert.Nil(t, opts.AllowOriginFunc)
	assert.Len(t, defaultOrigins, 6, "extra origins are not appended to the shared defaults")

	all := CorsConfig(nil, true)
	assert.NotNil(t, all.AllowOriginFunc)
	assert.True(t, all.AllowOriginFunc("https://anything.example.org"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_RATE", "25")
	assert.Equal(t, 25, getEnvInt("TEST_RATE", 10))

	t.Setenv("TEST_RATE", "lots")
	assert.Equal(t, 10, getEnvInt("TEST_RATE", 10))
	assert.Equal(t, 10, getEnvInt("TEST_RATE_UNSET", 10))
}

func TestR2Config_Enabled(t *testing.T) {
	assert.False(t, R2Config{}.Enabled())
	assert.True(t, R2Config{AccountID: "a", AccessKeyID: "k", SecretAccessKey: "s", BucketName: "b"}.Enabled())
}
