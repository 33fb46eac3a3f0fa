package postgres

// GetMigrations returns the embedded schema, oldest first.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_sessions_and_registrations", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_progression", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(255) NOT NULL,
    password_hash TEXT NOT NULL,
    first_name VARCHAR(100) NOT NULL DEFAULT '',
    last_name VARCHAR(100) NOT NULL DEFAULT '',
    role VARCHAR(20) NOT NULL DEFAULT 'staff',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT users_role_check CHECK (role IN ('admin', 'manager', 'staff'))
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email));
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SESSIONS & REGISTRATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location VARCHAR(200) NOT NULL DEFAULT '',
    presenter_name VARCHAR(200) NOT NULL DEFAULT '',
    session_date DATE NOT NULL,
    start_time VARCHAR(5) NOT NULL,
    end_time VARCHAR(5) NOT NULL,
    capacity INTEGER,
    status VARCHAR(20) NOT NULL DEFAULT 'draft',
    created_by UUID REFERENCES users(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT sessions_capacity_check CHECK (capacity IS NULL OR capacity > 0),
    CONSTRAINT sessions_status_check CHECK (status IN ('draft', 'published', 'full', 'completed', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_published_date
    ON sessions (session_date, start_time) WHERE status = 'published';

CREATE TABLE IF NOT EXISTS registrations (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    status VARCHAR(20) NOT NULL DEFAULT 'registered',
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT registrations_status_check CHECK (status IN ('registered', 'attended', 'no-show', 'cancelled'))
);

-- At most one active registration per (session, user).
CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_key
    ON registrations (session_id, user_id) WHERE status = 'registered';

CREATE INDEX IF NOT EXISTS idx_registrations_user ON registrations (user_id, status);
CREATE INDEX IF NOT EXISTS idx_registrations_session ON registrations (session_id, status);
`

const migration002Down = `
DROP TABLE IF EXISTS registrations;
DROP TABLE IF EXISTS sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PETS, STREAKS, ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS pets (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    name VARCHAR(50) NOT NULL,
    pet_type VARCHAR(30) NOT NULL DEFAULT 'companion',
    level INTEGER NOT NULL DEFAULT 1,
    experience INTEGER NOT NULL DEFAULT 0,
    total_sessions_attended INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT pets_experience_check CHECK (experience >= 0),
    CONSTRAINT pets_level_check CHECK (level BETWEEN 1 AND 10)
);

CREATE TABLE IF NOT EXISTS pet_experience_log (
    id UUID PRIMARY KEY,
    pet_id UUID NOT NULL REFERENCES pets(id) ON DELETE CASCADE,
    amount INTEGER NOT NULL,
    reason VARCHAR(20) NOT NULL,
    session_id UUID REFERENCES sessions(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT pet_experience_amount_check CHECK (amount > 0),
    CONSTRAINT pet_experience_reason_check CHECK (reason IN ('registration', 'attendance', 'interaction'))
);

CREATE INDEX IF NOT EXISTS idx_pet_experience_log_pet ON pet_experience_log (pet_id, created_at DESC);

CREATE TABLE IF NOT EXISTS streaks (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_session_date DATE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT streaks_bounds_check CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_streaks_running
    ON streaks (last_session_date) WHERE current_streak > 0;

CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    achievement_type VARCHAR(30) NOT NULL,
    unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT achievements_user_type_key UNIQUE (user_id, achievement_type)
);
`

const migration003Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS streaks;
DROP TABLE IF EXISTS pet_experience_log;
DROP TABLE IF EXISTS pets;
`
