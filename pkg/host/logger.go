package host

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger whose entries are forwarded to the host through
// log.log. Structured fields are appended to the message.
func NewLogger(d *Dispatcher, opts ...zap.Option) *zap.Logger {
	return zap.New(NewCore(d, zapcore.DebugLevel), opts...)
}

// NewCore returns the zapcore.Core behind NewLogger.
func NewCore(d *Dispatcher, enab zapcore.LevelEnabler) zapcore.Core {
	return &hostCore{
		LevelEnabler: enab,
		d:            d,
		enc: zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey:       "msg",
			NameKey:          "logger",
			ConsoleSeparator: " ",
			EncodeDuration:   zapcore.StringDurationEncoder,
			EncodeName:       zapcore.FullNameEncoder,
		}),
	}
}

type hostCore struct {
	zapcore.LevelEnabler
	d   *Dispatcher
	enc zapcore.Encoder
}

func (c *hostCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &hostCore{LevelEnabler: c.LevelEnabler, d: c.d, enc: c.enc.Clone()}
	for _, f := range fields {
		f.AddTo(clone.enc)
	}
	return clone
}

func (c *hostCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *hostCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimSuffix(buf.String(), "\n")
	buf.Free()
	return c.d.Log(levelOf(ent.Level), msg)
}

func (c *hostCore) Sync() error { return nil }

// levelOf maps zap levels onto log.log levels.
func levelOf(l zapcore.Level) Level {
	switch {
	case l >= zapcore.DPanicLevel:
		return LevelCritical
	case l == zapcore.ErrorLevel:
		return LevelError
	case l == zapcore.WarnLevel:
		return LevelWarning
	case l == zapcore.InfoLevel:
		return LevelInfo
	}
	return LevelDebug
}
