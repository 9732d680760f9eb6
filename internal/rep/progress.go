package rep

// Progress maps an elbow angle to the completion percentage of the descent:
// 0 at the up threshold (arm extended), 100 at the down threshold (arm bent),
// clamped outside that range.
func Progress(angle float64, cfg Config) float64 {
	span := cfg.UpThreshold - cfg.DownThreshold
	if span <= 0 {
		return 0
	}

	pct := (cfg.UpThreshold - angle) / span * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
