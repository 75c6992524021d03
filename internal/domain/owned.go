package domain

import "time"

// The types in this file are rows exclusively owned by a single user. Every one
// of them references users(id) with ON DELETE RESTRICT so that the store itself
// rejects an account purge that forgets a dependent table or deletes out of
// order.

// WorkoutSession is a single training session.
type WorkoutSession struct {
	ID        string     `json:"id"                 gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"            gorm:"type:varchar(64);not null;index:idx_user_sessions,priority:1"`
	Title     string     `json:"title"              gorm:"type:varchar(255);not null"`
	Notes     string     `json:"notes,omitempty"    gorm:"type:text"`
	StartedAt time.Time  `json:"started_at"         gorm:"index:idx_user_sessions,priority:2"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (WorkoutSession) TableName() string { return "workout_sessions" }

// Exercise is an entry in the user's personal exercise catalogue.
type Exercise struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	Name        string    `json:"name"         gorm:"type:varchar(128);not null"`
	MuscleGroup string    `json:"muscle_group" gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (Exercise) TableName() string { return "exercises" }

// SessionExercise links an exercise into a session at a given position.
type SessionExercise struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id"  gorm:"type:char(36);not null;index"`
	ExerciseID string    `json:"exercise_id" gorm:"type:char(36);not null;index"`
	Position   int       `json:"position"    gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`

	Session  WorkoutSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Exercise Exercise       `json:"-" gorm:"foreignKey:ExerciseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (SessionExercise) TableName() string { return "session_exercises" }

// ExerciseSet is one performed set of a session exercise.
type ExerciseSet struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	SessionExerciseID string    `json:"session_exercise_id" gorm:"type:char(36);not null;index"`
	Reps              int       `json:"reps"                gorm:"not null"`
	WeightKg          float64   `json:"weight_kg"`
	CreatedAt         time.Time `json:"created_at"`

	SessionExercise SessionExercise `json:"-" gorm:"foreignKey:SessionExerciseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (ExerciseSet) TableName() string { return "exercise_sets" }

// TrainingPlan is a user-authored plan.
type TrainingPlan struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Name      string    `json:"name"    gorm:"type:varchar(128);not null"`
	Body      string    `json:"body"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (TrainingPlan) TableName() string { return "training_plans" }

// BodyMetric is a timestamped body measurement (weight, body fat, ...).
type BodyMetric struct {
	ID         string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Kind       string    `json:"kind"    gorm:"type:varchar(32);not null"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (BodyMetric) TableName() string { return "body_metrics" }

// Contact kinds.
const (
	ContactEmail = "email"
	ContactPhone = "phone"
)

// UserContact is an email address or phone number attached to the account.
type UserContact struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Kind      string    `json:"kind"       gorm:"type:varchar(16);not null"`
	Value     string    `json:"value"      gorm:"type:varchar(255);not null"`
	IsPrimary bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserContact) TableName() string { return "user_contacts" }

// UserProfile holds static profile data, at most one row per user.
type UserProfile struct {
	UserID      string     `json:"user_id"      gorm:"type:varchar(64);primaryKey"`
	DisplayName string     `json:"display_name" gorm:"type:varchar(128)"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	HeightCm    *float64   `json:"height_cm,omitempty"`
	Locale      string     `json:"locale"       gorm:"type:varchar(16)"`
	UpdatedAt   time.Time  `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// UserStateHistory records account state transitions for the owner.
type UserStateHistory struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;index"`
	State     string    `json:"state"   gorm:"type:varchar(32);not null"`
	ChangedAt time.Time `json:"changed_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserStateHistory) TableName() string { return "user_state_history" }

// UserPoint is a gamification ledger entry.
type UserPoint struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Points    int       `json:"points"  gorm:"not null"`
	Reason    string    `json:"reason"  gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserPoint) TableName() string { return "user_points" }

// UserBadge is an awarded badge.
type UserBadge struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_user_badge,priority:1"`
	BadgeCode string    `json:"badge"    gorm:"type:varchar(64);not null;uniqueIndex:ux_user_badge,priority:2"`
	AwardedAt time.Time `json:"awarded_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserBadge) TableName() string { return "user_badges" }

// UserFollow is a directed follow edge. A purge removes both directions.
type UserFollow struct {
	FollowerID string    `json:"follower_id" gorm:"type:varchar(64);primaryKey"`
	FolloweeID string    `json:"followee_id" gorm:"type:varchar(64);primaryKey;index"`
	CreatedAt  time.Time `json:"created_at"`

	Follower User `json:"-" gorm:"foreignKey:FollowerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Followee User `json:"-" gorm:"foreignKey:FolloweeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (UserFollow) TableName() string { return "user_follows" }

// MediaObject is metadata for a stored blob (progress photos, avatars). The
// blob itself lives in the object store under StorageKey.
type MediaObject struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index"`
	StorageKey  string    `json:"-"            gorm:"type:varchar(512);not null;uniqueIndex"`
	ContentType string    `json:"content_type" gorm:"type:varchar(64)"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (MediaObject) TableName() string { return "media_objects" }

// AuthToken is a short-lived single-purpose token (email verification,
// password reset). Only the hash is stored.
type AuthToken struct {
	ID        string    `json:"-" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"-" gorm:"type:varchar(64);not null;index"`
	Purpose   string    `json:"-" gorm:"type:varchar(32);not null"`
	TokenHash string    `json:"-" gorm:"type:char(64);not null;uniqueIndex"`
	ExpiresAt time.Time `json:"-" gorm:"not null;index"`
	CreatedAt time.Time `json:"-"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (AuthToken) TableName() string { return "auth_tokens" }

// RefreshToken is a long-lived token used to mint access tokens.
type RefreshToken struct {
	ID        string     `json:"-" gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"-" gorm:"type:varchar(64);not null;index"`
	TokenHash string     `json:"-" gorm:"type:char(64);not null;uniqueIndex"`
	ExpiresAt time.Time  `json:"-" gorm:"not null;index"`
	RevokedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"-"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// AuthSession is a logged-in device session.
type AuthSession struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"-"          gorm:"type:varchar(64);not null;index"`
	UserAgent  string    `json:"user_agent" gorm:"type:varchar(255)"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null;index"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (AuthSession) TableName() string { return "auth_sessions" }
