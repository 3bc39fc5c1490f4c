package logger

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// bracketEncoder implements the operator log line format:
//
//	[YYYY-MM-DD HH:MM:SS] LEVEL: message  key=value  key=value
type bracketEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
}

func newBracketEncoder() *bracketEncoder {
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return &bracketEncoder{Encoder: baseEncoder}
}

func (enc *bracketEncoder) Clone() zapcore.Encoder {
	return &bracketEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *bracketEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	final.AppendString("[")
	final.AppendString(ent.Time.Format("2006-01-02 15:04:05"))
	final.AppendString("] ")
	final.AppendString(ent.Level.CapitalString())
	final.AppendString(": ")
	final.AppendString(ent.Message)

	for _, field := range fields {
		final.AppendString("  ")
		final.AppendString(field.Key)
		final.AppendString("=")
		final.AppendString(fieldValue(field))
	}

	final.AppendString("\n")
	return final, nil
}

// fieldValue renders a zap field without going through the JSON encoder
func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		if field.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.Float64Type:
		return fmt.Sprintf("%g", math.Float64frombits(uint64(field.Integer)))
	case zapcore.Float32Type:
		return fmt.Sprintf("%g", math.Float32frombits(uint32(field.Integer)))
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	case zapcore.DurationType:
		return fmt.Sprintf("%d", field.Integer)
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}
