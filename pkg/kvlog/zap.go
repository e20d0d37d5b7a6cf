package kvlog

import "go.uber.org/zap"

// Zap adapts a *zap.SugaredLogger to Logger. It is the default logger
// wired by cmd/kvclient. Within the library only this adapter imports
// zap; other packages log through the Logger interface, though importing
// kvlog links zap into them as well.
type Zap struct {
	L     *zap.SugaredLogger
	level Level
}

// NewZap wraps l, logging at up to level.
func NewZap(l *zap.SugaredLogger, level Level) *Zap {
	return &Zap{L: l, level: level}
}

func (z *Zap) Level() Level { return z.level }

func (z *Zap) Log(level Level, msg string, keyvals ...any) {
	if level > z.level {
		return
	}
	switch level {
	case LevelError:
		z.L.Errorw(msg, keyvals...)
	case LevelWarn:
		z.L.Warnw(msg, keyvals...)
	case LevelInfo:
		z.L.Infow(msg, keyvals...)
	case LevelDebug:
		z.L.Debugw(msg, keyvals...)
	}
}

var _ Logger = (*Zap)(nil)
