package webrtc

import (
	"github.com/pion/logging"
	"go.uber.org/zap"
)

// zapLoggerFactory routes pion's internal logging into zap, one named logger
// per pion scope ("ice", "dtls", "pc", ...).
type zapLoggerFactory struct {
	logger *zap.SugaredLogger
}

func newLoggerFactory(logger *zap.SugaredLogger) logging.LoggerFactory {
	return &zapLoggerFactory{logger: logger.Named("pion")}
}

func (f *zapLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zapLeveledLogger{l: f.logger.Named(scope)}
}

// zapLeveledLogger drops trace output; zap has no level below debug.
type zapLeveledLogger struct {
	l *zap.SugaredLogger
}

func (z *zapLeveledLogger) Trace(string)                     {}
func (z *zapLeveledLogger) Tracef(string, ...interface{})    {}
func (z *zapLeveledLogger) Debug(msg string)                 { z.l.Debug(msg) }
func (z *zapLeveledLogger) Debugf(f string, a ...interface{}) { z.l.Debugf(f, a...) }
func (z *zapLeveledLogger) Info(msg string)                  { z.l.Info(msg) }
func (z *zapLeveledLogger) Infof(f string, a ...interface{})  { z.l.Infof(f, a...) }
func (z *zapLeveledLogger) Warn(msg string)                  { z.l.Warn(msg) }
func (z *zapLeveledLogger) Warnf(f string, a ...interface{})  { z.l.Warnf(f, a...) }
func (z *zapLeveledLogger) Error(msg string)                 { z.l.Error(msg) }
func (z *zapLeveledLogger) Errorf(f string, a ...interface{}) { z.l.Errorf(f, a...) }
