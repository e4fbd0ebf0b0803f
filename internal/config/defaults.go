package config

// Runner defaults
const (
	DefaultUI         = "console"
	DefaultConfigName = "checkflow"
	DefaultConfigType = "yaml"
)
