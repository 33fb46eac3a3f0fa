// Package progression contains the gamification model of the PD portal.
//
// Every user owns exactly one Pet, one Streak and any number of Achievement
// unlocks. The package defines:
//
//   - Entities: Pet, Streak, Achievement, ExperienceEntry
//   - Policies: LevelFor / XPToNextLevel / ProgressPercent, NextStreak,
//     EligibleAchievements over the static achievement catalog
//   - Repository interfaces implemented in infrastructure/persistence
//
// # Level is derived
//
// A pet's Level is never set on its own. Every experience write recomputes
// it with LevelFor, so Level == LevelFor(Experience) always holds:
//
//	pet.GainExperience(10)          // experience and level move together
//	summary := pet.Progress()       // next-level XP and percent
//
// # Streaks
//
// Streaks count consecutive calendar days with confirmed attendance.
// NextStreak is a pure transition function; the repository applies it under
// a row lock so two activities for the same user cannot both read the same
// "before" state.
//
// # Achievements
//
// The catalog is a compile-time table. Unlocks are inserted idempotently, so
// evaluating the same milestones twice unlocks each achievement at most once.
package progression
