package sink

// Sink receives one published statistic value at a time.
type Sink interface {
	Publish(value float64)
}

// Func adapts a plain function to a Sink.
type Func func(value float64)

func (f Func) Publish(value float64) {
	f(value)
}

// Multi fans a publication out to several sinks in order.
type Multi []Sink

func (multi Multi) Publish(value float64) {
	for _, s := range multi {
		s.Publish(value)
	}
}

// Recorder keeps every published value.
type Recorder struct {
	values []float64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (recorder *Recorder) Publish(value float64) {
	recorder.values = append(recorder.values, value)
}

func (recorder *Recorder) Values() []float64 {
	return recorder.values
}

func (recorder *Recorder) Len() int {
	return len(recorder.values)
}

// Last returns the most recent value, if any was published.
func (recorder *Recorder) Last() (float64, bool) {
	if len(recorder.values) == 0 {
		return 0, false
	}
	return recorder.values[len(recorder.values)-1], true
}

func (recorder *Recorder) Reset() {
	recorder.values = recorder.values[:0]
}
