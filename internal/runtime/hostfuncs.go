package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"

	"github.com/jward/sifter/internal/model"
)

func stringArg(name string, args []object.Object) (string, *object.Error) {
	if len(args) != 1 {
		return "", object.NewArgsError(name, 1, len(args))
	}
	s, ok := args[0].(*object.String)
	if !ok {
		return "", object.Errorf("%s: argument must be a string, got %s", name, args[0].Type())
	}
	return s.Value(), nil
}

// makeDedentFn creates the "dedent" host function.
//
// dedent(text) → string with the common indentation removed
func makeDedentFn() *object.Builtin {
	return object.NewBuiltin("dedent", func(ctx context.Context, args ...object.Object) object.Object {
		text, errObj := stringArg("dedent", args)
		if errObj != nil {
			return errObj
		}
		return object.NewString(model.Dedent(text))
	})
}

// makeHashTextFn creates the "hash_text" host function.
//
// hash_text(text) → hex sha256 as used for content hashes
func makeHashTextFn() *object.Builtin {
	return object.NewBuiltin("hash_text", func(ctx context.Context, args ...object.Object) object.Object {
		text, errObj := stringArg("hash_text", args)
		if errObj != nil {
			return errObj
		}
		return object.NewString(model.HashText(text))
	})
}

// makeSplitArgsFn creates the "split_args" host function.
//
// split_args(text) → list of comma separated items, brackets respected
func makeSplitArgsFn() *object.Builtin {
	return object.NewBuiltin("split_args", func(ctx context.Context, args ...object.Object) object.Object {
		text, errObj := stringArg("split_args", args)
		if errObj != nil {
			return errObj
		}
		parts := model.SplitArgs(text)
		items := make([]object.Object, 0, len(parts))
		for _, p := range parts {
			items = append(items, object.NewString(p))
		}
		return object.NewList(items)
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger logrus.FieldLogger
}

func (l *logObject) Info(msg string) {
	l.logger.WithField("source", "script").Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.WithField("source", "script").Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.WithField("source", "script").Error(msg)
}
