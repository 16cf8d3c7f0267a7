package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 40, cfg.Sections.Capacity)
	assert.Equal(t, time.Minute, cfg.Sections.CacheTTL)
	assert.Equal(t, NotifyDriverLog, cfg.Notify.Driver)
	assert.Equal(t, 5*time.Second, cfg.Notify.RetryDelay)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Sections.StrictReject)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SECTION_CAPACITY", 0)
	v.Set("NOTIFY_DRIVER", "SendGrid")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("SECTION_CACHE_TTL", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, 40, cfg.Sections.Capacity)
	assert.Equal(t, NotifyDriverSendGrid, cfg.Notify.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Sections.CacheTTL)
}
