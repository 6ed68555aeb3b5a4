package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/util"
)

// EnvPrefix prefixes every environment override, e.g.
// SPEAKERSWITCH_HOME_ASSISTANT_TOKEN for home_assistant.token.
const EnvPrefix = "SPEAKERSWITCH"

// envBinding maps one config key to the field it overrides.
type envBinding struct {
	key string
	set func(c *Config, v *viper.Viper, key string)
}

func envString(key string, field func(*Config) *string) envBinding {
	return envBinding{key, func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetString(key) }}
}

func envInt(key string, field func(*Config) *int) envBinding {
	return envBinding{key, func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetInt(key) }}
}

func envFloat(key string, field func(*Config) *float64) envBinding {
	return envBinding{key, func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetFloat64(key) }}
}

func envBool(key string, field func(*Config) *bool) envBinding {
	return envBinding{key, func(c *Config, v *viper.Viper, key string) { *field(c) = v.GetBool(key) }}
}

var envBindings = []envBinding{
	envString("home_assistant.base_url", func(c *Config) *string { return &c.HomeAssistant.BaseURL }),
	envString("home_assistant.token", func(c *Config) *string { return &c.HomeAssistant.Token }),
	envString("home_assistant.entity_id", func(c *Config) *string { return &c.HomeAssistant.EntityID }),
	envString("home_assistant.domain", func(c *Config) *string { return &c.HomeAssistant.Domain }),
	envString("home_assistant.transport", func(c *Config) *string { return &c.HomeAssistant.Transport }),
	envInt("home_assistant.timeout_ms", func(c *Config) *int { return &c.HomeAssistant.TimeoutMs }),
	envInt("home_assistant.max_retries", func(c *Config) *int { return &c.HomeAssistant.MaxRetries }),
	envBool("home_assistant.discover", func(c *Config) *bool { return &c.HomeAssistant.Discover }),

	envString("audio.device", func(c *Config) *string { return &c.Audio.Device }),
	envString("audio.capture_path", func(c *Config) *string { return &c.Audio.CapturePath }),
	envFloat("audio.threshold", func(c *Config) *float64 { return &c.Audio.Threshold }),
	envInt("audio.check_interval_ms", func(c *Config) *int { return &c.Audio.CheckIntervalMs }),
	envInt("audio.silence_delay_seconds", func(c *Config) *int { return &c.Audio.SilenceDelaySeconds }),
	envString("audio.startup_state", func(c *Config) *string { return &c.Audio.StartupState }),

	envInt("web.port", func(c *Config) *int { return &c.Web.Port }),
	envString("web.bind", func(c *Config) *string { return &c.Web.Bind }),

	envString("notifications.webhook.url", func(c *Config) *string { return &c.Notifications.Webhook.URL }),
	envString("notifications.log.path", func(c *Config) *string { return &c.Notifications.Log.Path }),
	envString("notifications.zabbix.server", func(c *Config) *string { return &c.Notifications.Zabbix.Server }),
	envInt("notifications.zabbix.port", func(c *Config) *int { return &c.Notifications.Zabbix.Port }),
	envString("notifications.zabbix.host", func(c *Config) *string { return &c.Notifications.Zabbix.Host }),
	envString("notifications.zabbix.key", func(c *Config) *string { return &c.Notifications.Zabbix.Key }),
	envString("notifications.email.tenant_id", func(c *Config) *string { return &c.Notifications.Email.TenantID }),
	envString("notifications.email.client_id", func(c *Config) *string { return &c.Notifications.Email.ClientID }),
	envString("notifications.email.client_secret", func(c *Config) *string { return &c.Notifications.Email.ClientSecret }),
	envString("notifications.email.from_address", func(c *Config) *string { return &c.Notifications.Email.FromAddress }),
	envString("notifications.email.recipients", func(c *Config) *string { return &c.Notifications.Email.Recipients }),

	envString("event_log.path", func(c *Config) *string { return &c.EventLog.Path }),
	envString("event_log.archive.endpoint", func(c *Config) *string { return &c.EventLog.Archive.Endpoint }),
	envString("event_log.archive.region", func(c *Config) *string { return &c.EventLog.Archive.Region }),
	envString("event_log.archive.bucket", func(c *Config) *string { return &c.EventLog.Archive.Bucket }),
	envString("event_log.archive.access_key_id", func(c *Config) *string { return &c.EventLog.Archive.AccessKeyID }),
	envString("event_log.archive.secret_access_key", func(c *Config) *string { return &c.EventLog.Archive.SecretAccessKey }),
	envString("event_log.archive.prefix", func(c *Config) *string { return &c.EventLog.Archive.Prefix }),
}

// applyEnv overlays SPEAKERSWITCH_* environment variables onto c.
func applyEnv(c *Config) error {
	v := viper.New()

	for _, b := range envBindings {
		if err := v.BindEnv(b.key, EnvName(b.key)); err != nil {
			return util.WrapError("bind environment variable", err)
		}
		if v.IsSet(b.key) {
			b.set(c, v, b.key)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set take precedence. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return util.WrapError("load .env", err)
}
