package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel      string
	LogFormat     string
	LogFile       string
	DebugRTSP     bool
	DebugRTP      bool
	DebugGaze     bool
	DebugVideo    bool
	DebugMatch    bool
	DebugTimeEcho bool
	DebugAll      bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false,
		"Enable RTSP session debugging (requests, responses, keepalives)")
	fs.BoolVar(&f.DebugRTP, "debug-rtp", false,
		"Enable detailed RTP packet debugging (sequence, timestamp, payload)")
	fs.BoolVar(&f.DebugGaze, "debug-gaze", false,
		"Enable gaze payload decode debugging")
	fs.BoolVar(&f.DebugVideo, "debug-video", false,
		"Enable NAL/video depacketizer debugging")
	fs.BoolVar(&f.DebugMatch, "debug-match", false,
		"Enable matching-engine debugging (queue depths, fuse decisions)")
	fs.BoolVar(&f.DebugTimeEcho, "debug-timeecho", false,
		"Enable time-echo round debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		if f.DebugRTSP {
			cfg.EnableCategory(DebugRTSP)
			cfg.Level = LevelDebug
		}
		if f.DebugRTP {
			cfg.EnableCategory(DebugRTP)
			cfg.Level = LevelDebug
		}
		if f.DebugGaze {
			cfg.EnableCategory(DebugGaze)
			cfg.Level = LevelDebug
		}
		if f.DebugVideo {
			cfg.EnableCategory(DebugVideo)
			cfg.Level = LevelDebug
		}
		if f.DebugMatch {
			cfg.EnableCategory(DebugMatch)
			cfg.Level = LevelDebug
		}
		if f.DebugTimeEcho {
			cfg.EnableCategory(DebugTimeEcho)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./stream -host 192.168.1.50 -port 8080

  Enable DEBUG level:
    ./stream --log-level debug
    ./stream -l debug

  Log to file:
    ./stream --log-file stream.log
    ./stream -o stream.log

  JSON format for structured logging:
    ./stream --log-format json -o stream.json

  Debug RTSP session setup only:
    ./stream --debug-rtsp

  Debug RTP and video depacketization:
    ./stream --debug-rtp --debug-video

  Debug everything:
    ./stream --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./stream -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugRTSP {
			debugCategories = append(debugCategories, "rtsp")
		}
		if f.DebugRTP {
			debugCategories = append(debugCategories, "rtp")
		}
		if f.DebugGaze {
			debugCategories = append(debugCategories, "gaze")
		}
		if f.DebugVideo {
			debugCategories = append(debugCategories, "video")
		}
		if f.DebugMatch {
			debugCategories = append(debugCategories, "match")
		}
		if f.DebugTimeEcho {
			debugCategories = append(debugCategories, "timeecho")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
