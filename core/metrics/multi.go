package metrics

import "errors"

// MultiSink fans events out to several sinks. Every sink is attempted; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordMessage(ev MessageEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordMessage(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSensorValue(ev SensorValueEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SensorValueRecorder); ok {
			errs = append(errs, r.RecordSensorValue(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(CommandRecorder); ok {
			errs = append(errs, r.RecordCommand(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordDrop(ev DropEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(DropRecorder); ok {
			errs = append(errs, r.RecordDrop(ev))
		}
	}
	return errors.Join(errs...)
}
