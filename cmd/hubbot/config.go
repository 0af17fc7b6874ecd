package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"mellium.im/xmpp/jid"
)

type roomSetting struct {
	JID  string `mapstructure:"jid"`
	Nick string `mapstructure:"nick"`
}

type botSettings struct {
	JID            string        `mapstructure:"jid"`
	Password       string        `mapstructure:"password"`
	Nick           string        `mapstructure:"nick"`
	CommandPrefix  string        `mapstructure:"command_prefix"`
	CalcdPath      string        `mapstructure:"calcd"`
	ErrorRecipient string        `mapstructure:"error_recipient"`
	QueueSize      int           `mapstructure:"queue_size"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
	RateLimitMax   int           `mapstructure:"rate_limit_max"`
	RateLimitSpan  time.Duration `mapstructure:"rate_limit_window"`
	Rooms          []roomSetting `mapstructure:"rooms"`

	account jid.JID
}

func loadSettings(path string) (*botSettings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("command_prefix", "!")
	v.SetDefault("queue_size", 5)
	v.SetDefault("task_timeout", 10*time.Second)
	v.SetDefault("rate_limit_max", 5)
	v.SetDefault("rate_limit_window", time.Minute)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	settings := &botSettings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if settings.JID == "" || settings.Password == "" {
		return nil, fmt.Errorf("config needs jid and password")
	}
	account, err := jid.Parse(settings.JID)
	if err != nil {
		return nil, fmt.Errorf("bad account jid: %w", err)
	}
	settings.account = account
	if settings.Nick == "" {
		settings.Nick = account.Localpart()
	}
	return settings, nil
}
