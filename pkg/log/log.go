package log

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

type Logger interface {
	Fatalf(string, ...interface{})
	Errorf(string, ...interface{})
	Warningf(string, ...interface{})
	Warnf(string, ...interface{})
	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Fatal(...interface{})
	Error(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Debug(...interface{})
}

type LoggerConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

var logger Logger = logrus.New()

func GetLogger() Logger {
	return logger
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

func Fatal(args ...interface{}) {
	logger.Fatal(args...)
}

func Error(args ...interface{}) {
	logger.Error(args...)
}

func Warn(args ...interface{}) {
	logger.Warn(args...)
}

func Info(args ...interface{}) {
	logger.Info(args...)
}

func Debug(args ...interface{}) {
	logger.Debug(args...)
}

// NewLogger builds a logrus logger writing to stdout, and additionally to a
// rotated file when cfg.Path is set.
func NewLogger(cfg *LoggerConfig) (Logger, error) {

	logrusLogger := logrus.New()

	logrusLogger.SetFormatter(&logrus.TextFormatter{})

	if cfg.Path != "" {
		logrotate := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    10, // Max megabytes before log is rotated
			MaxBackups: 30, // Max number of old log files to keep
			MaxAge:     30, // Max number of days to retain log files
			Compress:   true,
		}
		logrusLogger.SetOutput(io.MultiWriter(os.Stdout, logrotate))
	} else {
		logrusLogger.SetOutput(os.Stdout)
	}

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	logLevel, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logrusLogger.SetLevel(logLevel)

	return logrusLogger, nil
}

func InitLogger(cfg *LoggerConfig) error {
	var err error
	logger, err = NewLogger(cfg)
	return err
}
