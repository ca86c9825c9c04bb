// Package config loads the small amount of ambient configuration this
// client needs outside of what the device itself reports: secrets that
// should not live in a repo (pairing codes, recording template overrides)
// via a .env-style file, and a list of known devices for tools that want to
// skip discovery.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds secrets loaded from a .env file.
type Config struct {
	PairingCode     string
	TemplateDataKey string
}

// Load reads configuration from a .env file.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}

		switch key {
		case "pairing_code":
			cfg.PairingCode = decodedValue
		case "template_data_key":
			cfg.TemplateDataKey = decodedValue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	return cfg, nil
}

// Device describes one known device entry in a device-list file.
type Device struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DeviceList is a YAML-loaded list of known devices, for tools that want to
// address a device directly without running discovery first.
type DeviceList struct {
	Devices []Device `yaml:"devices"`
}

// LoadDeviceList reads a YAML device-list file.
func LoadDeviceList(path string) (*DeviceList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device list: %w", err)
	}

	var list DeviceList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse device list: %w", err)
	}

	return &list, nil
}

// ByName returns the device entry with the given name, if present.
func (d *DeviceList) ByName(name string) (Device, bool) {
	for _, dev := range d.Devices {
		if dev.Name == name {
			return dev, true
		}
	}
	return Device{}, false
}
