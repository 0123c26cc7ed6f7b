package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

// Config is the demo host's on-disk configuration: the §6 coordinator
// Configuration block plus the host-specific listen/desktop settings
// that have no equivalent inside rfb.Config.
type Config struct {
	ListenAddr        string `yaml:"listenAddr"`
	ControlSocketPath string `yaml:"controlSocketPath"`
	LogLevel          string `yaml:"logLevel"`
	DesktopName       string `yaml:"desktopName"`
	DesktopWidth      int    `yaml:"desktopWidth"`
	DesktopHeight     int    `yaml:"desktopHeight"`

	MaxIdleTime          int  `yaml:"maxIdleTime"`
	MaxDisconnectionTime int  `yaml:"maxDisconnectionTime"`
	MaxConnectionTime    int  `yaml:"maxConnectionTime"`
	FrameRate             int  `yaml:"frameRate"`
	NeverShared           bool `yaml:"neverShared"`
	DisconnectClients     bool `yaml:"disconnectClients"`
	QueryConnect          bool `yaml:"queryConnect"`
	AcceptCutText         bool `yaml:"acceptCutText"`
	SendCutText           bool `yaml:"sendCutText"`
	AcceptKeyEvents       bool `yaml:"acceptKeyEvents"`
	AcceptPointerEvents   bool `yaml:"acceptPointerEvents"`
	AcceptSetDesktopSize  bool `yaml:"acceptSetDesktopSize"`
	CompareFB             int  `yaml:"compareFB"`
}

// defaultConfig mirrors rfb.DefaultConfig, plus the host-only fields.
func defaultConfig() Config {
	rc := rfb.DefaultConfig()
	return Config{
		ListenAddr:        "0.0.0.0:5900",
		ControlSocketPath: "/tmp/rfbsession-control.sock",
		LogLevel:          "info",
		DesktopName:       "rfbsession demo desktop",
		DesktopWidth:      1024,
		DesktopHeight:     768,

		FrameRate:            rc.FrameRate,
		DisconnectClients:    rc.DisconnectClients,
		AcceptCutText:        rc.AcceptCutText,
		SendCutText:          rc.SendCutText,
		AcceptKeyEvents:      rc.AcceptKeyEvents,
		AcceptPointerEvents:  rc.AcceptPointerEvents,
		AcceptSetDesktopSize: rc.AcceptSetDesktopSize,
		CompareFB:            int(rc.CompareFB),
	}
}

// loadConfig reads a YAML file at path into defaultConfig's values,
// leaving defaults in place for any field the file omits. A missing
// file is not an error: the demo runs fine on defaults alone.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// rfbConfig projects the enumerated §6 fields into rfb.Config.
func (c Config) rfbConfig() rfb.Config {
	return rfb.Config{
		MaxIdleTime:          c.MaxIdleTime,
		MaxDisconnectionTime: c.MaxDisconnectionTime,
		MaxConnectionTime:    c.MaxConnectionTime,
		FrameRate:            c.FrameRate,
		NeverShared:          c.NeverShared,
		DisconnectClients:    c.DisconnectClients,
		QueryConnect:         c.QueryConnect,
		AcceptCutText:        c.AcceptCutText,
		SendCutText:          c.SendCutText,
		AcceptKeyEvents:      c.AcceptKeyEvents,
		AcceptPointerEvents:  c.AcceptPointerEvents,
		AcceptSetDesktopSize: c.AcceptSetDesktopSize,
		CompareFB:            rfb.CompareFBMode(c.CompareFB),
	}
}

// validate rejects a configuration the coordinator itself would reject,
// plus the host-only fields' own constraints, wrapped in the
// coordinator's own error taxonomy for consistency.
func (c Config) validate() error {
	if err := c.rfbConfig().Validate(); err != nil {
		return &rfb.Error{Kind: rfb.KindInvalidArgument, Op: "config.Validate", Err: err}
	}
	if c.ListenAddr == "" {
		return &rfb.Error{Kind: rfb.KindInvalidArgument, Op: "config.Validate", Err: fmt.Errorf("listenAddr must not be empty")}
	}
	if c.DesktopWidth <= 0 || c.DesktopHeight <= 0 {
		return &rfb.Error{Kind: rfb.KindInvalidArgument, Op: "config.Validate", Err: fmt.Errorf("desktopWidth/desktopHeight must be positive")}
	}
	return nil
}
