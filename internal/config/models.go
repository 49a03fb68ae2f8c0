package config

// ServerConfig represents the configuration for the HTTP API server
type ServerConfig struct {
	ListenAddress string
}

// RemoteConfig represents the configuration for the remote classifier
type RemoteConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  string
}

// StoreConfig represents the configuration for the profile store
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// GetServer returns the server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
	}
}

// GetRemote returns the remote classifier configuration
func (c *Config) GetRemote() RemoteConfig {
	return RemoteConfig{
		Enabled:  c.GetBool("remote.enabled"),
		Endpoint: c.GetString("remote.endpoint"),
		Timeout:  c.GetString("remote.timeout"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}
