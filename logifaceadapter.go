package spscchan

import (
	"github.com/joeycumines/logiface"
)

// event is a minimal logiface.Event backed by an Entry, letting a caller who
// has already standardized on logiface drive spscchan's own Logger sink
// through the usual New/WithEventFactory/WithWriter entrypoints, instead of
// maintaining two parallel logging integrations.
type event struct {
	logiface.UnimplementedEvent
	entry Entry
}

func (e *event) Level() logiface.Level { return fromLevel(e.entry.Level) }

func (e *event) AddField(key string, val any) {
	if e.entry.Fields == nil {
		e.entry.Fields = make(map[string]any, 4)
	}
	e.entry.Fields[key] = val
}

func (e *event) AddMessage(msg string) bool {
	e.entry.Message = msg
	return true
}

func (e *event) AddError(err error) bool {
	e.entry.Err = err
	return true
}

func fromLevel(l Level) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func toLevel(l logiface.Level) Level {
	switch {
	case l <= logiface.LevelError:
		return LevelError
	case l <= logiface.LevelWarning:
		return LevelWarn
	case l <= logiface.LevelInformational:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// EventFactory is a logiface.EventFactory[logiface.Event] that produces
// events backed by Entry, for use with logiface.New(WithEventFactory(...)).
var EventFactory = logiface.NewEventFactoryFunc[logiface.Event](func(level logiface.Level) logiface.Event {
	return &event{entry: Entry{Level: toLevel(level)}}
})

// Writer is a logiface.Writer[logiface.Event] that forwards each event into
// the package-level Logger (see SetLogger). Construct a *logiface.Logger
// with this and EventFactory to get a logiface integration that ultimately
// lands on the same sink every spscchan variant logs through.
var Writer = logiface.NewWriterFunc[logiface.Event](func(e logiface.Event) error {
	ev, ok := e.(*event)
	if !ok {
		return nil
	}
	getLogger().Log(ev.entry)
	return nil
})

// LogifaceSink adapts an existing *logiface.Logger[E] into a spscchan.Logger,
// for a caller that wants the variant packages' diagnostic events to flow
// through a logiface pipeline it already owns (e.g. one writing to zerolog
// or logrus via a separate logiface adapter module) rather than through
// SetLogger's simpler Logger interface.
type LogifaceSink[E logiface.Event] struct {
	Logger *logiface.Logger[E]
}

func (s LogifaceSink[E]) IsEnabled(level Level) bool {
	return s.Logger != nil && s.Logger.Level() >= fromLevel(level)
}

func (s LogifaceSink[E]) Log(entry Entry) {
	if s.Logger == nil {
		return
	}
	b := s.Logger.Build(fromLevel(entry.Level))
	if b == nil {
		return
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	for k, v := range entry.Fields {
		b = b.Field(k, v)
	}
	b.Field("category", entry.Category).Log(entry.Message)
}
