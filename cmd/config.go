package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig seeds flag defaults from an optional YAML file. Flags
// remain primary; YAML only supplies defaults a flag can still
// override.
type fileConfig struct {
	Profile      string             `yaml:"profile"`
	Distribution string             `yaml:"distribution"`
	DocSize      string             `yaml:"docSize"`
	Transport    string             `yaml:"transport"`
	Compression  string             `yaml:"compression"`
	HTTPVersion  string             `yaml:"httpVersion"`
	SNMP         snmpFileConfig     `yaml:"snmp"`
}

type snmpFileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Profile  string `yaml:"profile"`
	Port     int    `yaml:"port"`
	Interval string `yaml:"interval"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cmd: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cmd: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills any flag that was left at its zero value from the
// loaded file config, without overriding anything the user explicitly
// set on the command line.
func (o *runOptions) applyFileDefaults(fc fileConfig, changed func(name string) bool) {
	if fc.Profile != "" && !changed("profile") {
		o.Profile = fc.Profile
	}
	if fc.Distribution != "" && !changed("distribution") {
		o.Distribution = fc.Distribution
	}
	if fc.DocSize != "" && !changed("doc-size") {
		if _, err := parseSizeBytes(fc.DocSize); err == nil {
			o.DocSize = fc.DocSize
		}
	}
	if fc.Transport != "" && !changed("transport") {
		o.Transport = fc.Transport
	}
	if fc.Compression != "" && !changed("compression") {
		o.Compression = fc.Compression
	}
	if fc.HTTPVersion != "" && !changed("http-version") {
		o.HTTPVersion = fc.HTTPVersion
	}
	if fc.SNMP.Enabled && !changed("snmp-enabled") {
		o.SNMPEnabled = true
	}
	if fc.SNMP.Profile != "" && !changed("snmp-profile") {
		o.SNMPProfile = fc.SNMP.Profile
	}
	if fc.SNMP.Port != 0 && !changed("snmp-port") {
		o.SNMPPort = fc.SNMP.Port
	}
	if fc.SNMP.Interval != "" && !changed("snmp-interval") {
		if _, err := parseDurationUnit(fc.SNMP.Interval); err == nil {
			o.SNMPInterval = fc.SNMP.Interval
		}
	}
}
