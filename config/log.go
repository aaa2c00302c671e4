package config

import (
	"errors"

	"github.com/natefinch/lumberjack"
)

// Log configures the optional rotating log file. Console output is always on.
type Log struct {
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // files
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

func (l Log) Validate() error {
	if l.MaxSize < 0 || l.MaxBackups < 0 || l.MaxAge < 0 {
		return errors.New("log rotation values must not be negative")
	}
	return nil
}

// NewWriter returns a rotating writer for File, or nil when File is empty.
func (l Log) NewWriter() *lumberjack.Logger {
	if l.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
		Compress:   l.Compress,
		LocalTime:  true,
	}
}
