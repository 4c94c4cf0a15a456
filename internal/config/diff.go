package config

// ConfigDiff describes what changed between two configs. Used for reload
// logging so operators can audit exactly which knobs a promotion touched.
type ConfigDiff struct {
	ThresholdsChanged bool // any of t_approve / t_escalate / t_block
	MinSensorsChanged bool
	SensorsChanged    bool         // true if any sensor entry differs
	SensorChanges     []SensorDiff // per-sensor diffs
	LogLevelChanged   bool
	NewLogLevel       LogLevel
}

// SensorDiff describes what changed for a single sensor between two configs.
type SensorDiff struct {
	ID               string
	EnabledChanged   bool
	WeightChanged    bool
	ThresholdChanged bool
	CategoryChanged  bool
	DirectionChanged bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.TApprove != new.TApprove || old.TEscalate != new.TEscalate || old.TBlock != new.TBlock {
		d.ThresholdsChanged = true
	}
	if old.MinDeterminateSensors != new.MinDeterminateSensors {
		d.MinSensorsChanged = true
	}

	// Detect modified and removed sensors.
	for id, oldSC := range old.Sensors {
		newSC, exists := new.Sensors[id]
		if !exists {
			d.SensorChanges = append(d.SensorChanges, SensorDiff{ID: id, Removed: true})
			d.SensorsChanged = true
			continue
		}
		sd := diffSensor(id, oldSC, newSC)
		if sd.EnabledChanged || sd.WeightChanged || sd.ThresholdChanged || sd.CategoryChanged || sd.DirectionChanged {
			d.SensorChanges = append(d.SensorChanges, sd)
			d.SensorsChanged = true
		}
	}

	// Detect added sensors.
	for id := range new.Sensors {
		if _, exists := old.Sensors[id]; !exists {
			d.SensorChanges = append(d.SensorChanges, SensorDiff{ID: id, Added: true})
			d.SensorsChanged = true
		}
	}

	return d
}

// diffSensor compares two sensor configs with the same id.
func diffSensor(id string, old, new SensorConfig) SensorDiff {
	sd := SensorDiff{ID: id}

	if old.Enabled != new.Enabled {
		sd.EnabledChanged = true
	}
	if !floatPtrEqual(old.Weight, new.Weight) {
		sd.WeightChanged = true
	}
	if !floatPtrEqual(old.Threshold, new.Threshold) {
		sd.ThresholdChanged = true
	}
	if old.Category != new.Category {
		sd.CategoryChanged = true
	}
	if old.Direction != new.Direction {
		sd.DirectionChanged = true
	}

	return sd
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
