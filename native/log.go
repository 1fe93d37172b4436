package native

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// page levels without a zap equivalent are folded into the nearest one
var pageLevels = []struct {
	name  string
	level zapcore.Level
}{
	{"trace", zapcore.DebugLevel},
	{"debug", zapcore.DebugLevel},
	{"info", zapcore.InfoLevel},
	{"warn", zapcore.WarnLevel},
	{"error", zapcore.ErrorLevel},
	{"critical", zapcore.ErrorLevel},
}

// RegisterLog binds the Log namespace. Page messages are written to log under the "page" name.
func RegisterLog(t *Table, log *zap.SugaredLogger) {
	pageLog := log.Named("page").Desugar()
	for _, l := range pageLevels {
		l := l
		t.Bind(Name("log_"+l.name), func(ctx context.Context, args Args) (any, error) {
			msg, err := args.String(0)
			if err != nil {
				return nil, err
			}
			if ce := pageLog.Check(l.level, msg); ce != nil {
				ce.Write(zap.String("PageLevel", l.name))
			}
			return nil, nil
		})
	}
}
