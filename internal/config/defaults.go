package config

func Defaults() *Config {
	return &Config{
		Bot: BotConfig{
			Prefix:                 "!",
			AdminIDs:               FlexStringList{},
			DefaultCooldownSeconds: 5,
		},
		Poll: PollConfig{
			FloorMs:       5000,
			CeilingMs:     120000,
			JitterMs:      2000,
			DedupCacheCap: 1000,
		},
		Store: StoreConfig{
			DBPath: "~/.goatbot/goatbot.db",
		},
		Commands: CommandsConfig{},
		Dashboard: DashboardConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8088,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
