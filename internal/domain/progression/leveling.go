package progression

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Level is a pet level in [MinLevel, MaxLevel].
type Level int

const (
	// MinLevel is the level of a freshly provisioned pet.
	MinLevel Level = 1

	// MaxLevel is the ceiling. Experience past the last threshold is kept
	// but no longer moves the level.
	MaxLevel Level = 10
)

// levelThresholds[i] is the total experience needed for level i+1.
// Deltas grow by 50 per level: 100, 150, 200 ... 500.
var levelThresholds = [MaxLevel]int{0, 100, 250, 450, 700, 1000, 1350, 1750, 2200, 2700}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// IsValid checks if the level is within range.
func (l Level) IsValid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// IsMax reports whether the level is the ceiling.
func (l Level) IsMax() bool {
	return l >= MaxLevel
}

// clamp forces out-of-range levels back into [MinLevel, MaxLevel].
func (l Level) clamp() Level {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// RequiredXP returns the total experience needed to reach the level.
func (l Level) RequiredXP() int {
	return levelThresholds[l.clamp()-1]
}

// LevelFor returns the highest level whose threshold is <= xp.
// Negative experience is treated as zero.
func LevelFor(xp int) Level {
	for i := len(levelThresholds) - 1; i >= 0; i-- {
		if xp >= levelThresholds[i] {
			return Level(i + 1)
		}
	}
	return MinLevel
}

// XPToNextLevel returns how much experience is missing for the next level,
// or 0 at MaxLevel.
func XPToNextLevel(xp int, level Level) int {
	level = level.clamp()
	if level.IsMax() {
		return 0
	}
	missing := (level + 1).RequiredXP() - xp
	if missing < 0 {
		return 0
	}
	return missing
}

// ProgressPercent returns progress through the current level in [0, 100].
// It interpolates linearly between the level's threshold and the next one,
// and clamps when xp and level disagree.
func ProgressPercent(xp int, level Level) float64 {
	level = level.clamp()
	if level.IsMax() {
		return 100
	}
	current := level.RequiredXP()
	next := (level + 1).RequiredXP()

	percent := float64(xp-current) / float64(next-current) * 100
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
