package signaling

import (
	gosiplog "github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
)

// loggerAdapter bridges the process logger into the gosip log.Logger
// interface required by the packet parser.
type loggerAdapter struct {
	logger *logrus.Entry
}

func (la *loggerAdapter) Fields() gosiplog.Fields {
	return gosiplog.Fields{}
}

func (la *loggerAdapter) WithFields(fields map[string]interface{}) gosiplog.Logger {
	return &loggerAdapter{logger: la.logger.WithFields(fields)}
}

func (la *loggerAdapter) Prefix() string {
	return ""
}

func (la *loggerAdapter) WithPrefix(prefix string) gosiplog.Logger {
	return la
}

func (la *loggerAdapter) Print(args ...interface{}) {
	la.logger.Print(args...)
}

func (la *loggerAdapter) Printf(format string, args ...interface{}) {
	la.logger.Printf(format, args...)
}

func (la *loggerAdapter) Trace(args ...interface{}) {
	la.logger.Trace(args...)
}

func (la *loggerAdapter) Tracef(format string, args ...interface{}) {
	la.logger.Tracef(format, args...)
}

func (la *loggerAdapter) Debug(args ...interface{}) {
	la.logger.Debug(args...)
}

func (la *loggerAdapter) Debugf(format string, args ...interface{}) {
	la.logger.Debugf(format, args...)
}

func (la *loggerAdapter) Info(args ...interface{}) {
	la.logger.Info(args...)
}

func (la *loggerAdapter) Infof(format string, args ...interface{}) {
	la.logger.Infof(format, args...)
}

func (la *loggerAdapter) Warn(args ...interface{}) {
	la.logger.Warn(args...)
}

func (la *loggerAdapter) Warnf(format string, args ...interface{}) {
	la.logger.Warnf(format, args...)
}

func (la *loggerAdapter) Error(args ...interface{}) {
	la.logger.Error(args...)
}

func (la *loggerAdapter) Errorf(format string, args ...interface{}) {
	la.logger.Errorf(format, args...)
}

func (la *loggerAdapter) Fatal(args ...interface{}) {
	la.logger.Fatal(args...)
}

func (la *loggerAdapter) Fatalf(format string, args ...interface{}) {
	la.logger.Fatalf(format, args...)
}

func (la *loggerAdapter) Panic(args ...interface{}) {
	la.logger.Panic(args...)
}

func (la *loggerAdapter) Panicf(format string, args ...interface{}) {
	la.logger.Panicf(format, args...)
}

func (la *loggerAdapter) SetLevel(level uint32) {
	// Level is controlled by the process logger configuration.
}
