package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerVersion is reported by the version flag and by -v/--version.
const ServerVersion = "1.0.0"

// FileConfig is the on-disk shape of server.yaml (§4.8). It mirrors
// GateConfig field-for-field plus the process-level settings (listen
// address, metrics address, key size is fixed and not configurable)
// that sit outside the state machine itself.
type FileConfig struct {
	ListenAddr                   string         `yaml:"listen_addr"`
	OnlineMode                   bool           `yaml:"online_mode"`
	SupportedProtocolVersion     int32          `yaml:"supported_protocol_version"`
	ServerMinecraftVersionString string         `yaml:"server_minecraft_version_string"`
	Motd                         string         `yaml:"motd"`
	NetworkCompressionThreshold  int            `yaml:"network_compression_threshold"`
	SessionServerBaseURL         string         `yaml:"session_server_base_url"`
	AuthTimeout                  configDuration `yaml:"auth_timeout"`
	MetricsAddr                  string         `yaml:"metrics_addr"`
}

// configDuration lets server.yaml spell out a human duration like
// "10s": gopkg.in/yaml.v3 has no built-in codec for time.Duration, so
// this wraps it behind the library's Unmarshaler/Marshaler hooks.
type configDuration time.Duration

func (d *configDuration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("palisade: parse duration %q: %w", value.Value, err)
	}
	*d = configDuration(parsed)
	return nil
}

func (d configDuration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// defaultFileConfig matches the defaults §4.8 specifies: vanilla
// Mojang session server, compression on above 256 bytes, online mode
// on, metrics disabled unless an address is given.
func defaultFileConfig() FileConfig {
	return FileConfig{
		ListenAddr:                   ":25565",
		OnlineMode:                   true,
		SupportedProtocolVersion:     772,
		ServerMinecraftVersionString: "1.21.4",
		Motd:                         "A Palisade Server",
		NetworkCompressionThreshold:  256,
		SessionServerBaseURL:         "https://sessionserver.mojang.com",
		AuthTimeout:                  configDuration(10 * time.Second),
		MetricsAddr:                  "",
	}
}

// LoadConfig reads path, starting from the defaults and overwriting
// only the fields present in the file — matching the teacher's
// pattern of applying zero-value defaults after decode, generalized
// to cover every field instead of just two.
func LoadConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("palisade: open config: %w", err)
	}
	defer f.Close()

	raw := defaultFileConfig()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("palisade: parse config: %w", err)
	}
	return raw, nil
}

// GateConfig adapts a FileConfig into the subset HandleConnection's
// Gate actually consumes.
func (c FileConfig) GateConfig() GateConfig {
	return GateConfig{
		OnlineMode:                   c.OnlineMode,
		SupportedProtocolVersion:     c.SupportedProtocolVersion,
		ServerMinecraftVersionString: c.ServerMinecraftVersionString,
		NetworkCompressionThreshold:  c.NetworkCompressionThreshold,
		AuthBaseURL:                  c.SessionServerBaseURL,
	}
}

// Save writes cfg to path as YAML, used by `palisade configure` to
// store the interactive wizard's result.
func (c FileConfig) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(c)
}
