package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 6
	// bcrypt ignores input beyond 72 bytes, so longer passwords are rejected.
	MaxPasswordBytes = 72
	MaxNameLength    = 50
	DefaultLanguage  = "ko"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeAuto
}

type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

type Preferences struct {
	Theme         Theme         `json:"theme"`
	Language      string        `json:"language"`
	Notifications Notifications `json:"notifications"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:         ThemeAuto,
		Language:      DefaultLanguage,
		Notifications: Notifications{Email: true, Push: true},
	}
}

type User struct {
	ID                     uuid.UUID   `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Username               string      `json:"username" gorm:"type:varchar(30);uniqueIndex;not null"`
	Email                  string      `json:"email" gorm:"uniqueIndex;not null"`
	Password               string      `json:"-" gorm:"not null"`
	Name                   string      `json:"name,omitempty" gorm:"type:varchar(50)"`
	ProfileImage           *string     `json:"profileImage"`
	IsActive               bool        `json:"isActive" gorm:"not null;index"`
	IsEmailVerified        bool        `json:"isEmailVerified" gorm:"not null"`
	EmailVerificationToken string      `json:"-" gorm:"index"`
	PasswordResetToken     string      `json:"-"`
	PasswordResetExpires   *time.Time  `json:"-"`
	LastLogin              *time.Time  `json:"lastLogin"`
	Preferences            Preferences `json:"preferences" gorm:"type:jsonb;serializer:json"`
	CreatedAt              time.Time   `json:"createdAt" gorm:"autoCreateTime;index:,sort:desc"`
	UpdatedAt              time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

// StripSecrets clears the fields that are excluded from default reads.
func (u *User) StripSecrets() {
	u.Password = ""
	u.EmailVerificationToken = ""
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// TodoCounts are derived from the todo collection, never stored on the user.
type TodoCounts struct {
	TodoCount          int64 `json:"todoCount"`
	CompletedTodoCount int64 `json:"completedTodoCount"`
}

type UserView struct {
	User
	*TodoCounts
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PreferencesInput carries a partial preferences document.
type PreferencesInput struct {
	Theme         *Theme   `json:"theme" enums:"light,dark,auto"`
	Language      *string  `json:"language"`
	Notifications *struct {
		Email *bool `json:"email"`
		Push  *bool `json:"push"`
	} `json:"notifications"`
}

// Merge overlays the supplied fields on base.
func (p PreferencesInput) Merge(base Preferences) (Preferences, error) {
	var errs ValidationErrors
	if p.Theme != nil {
		if !p.Theme.Valid() {
			errs.add("preferences.theme", "theme must be one of light, dark, auto")
		}
		base.Theme = *p.Theme
	}
	if p.Language != nil {
		lang := strings.TrimSpace(*p.Language)
		if lang == "" {
			lang = DefaultLanguage
		}
		base.Language = lang
	}
	if n := p.Notifications; n != nil {
		if n.Email != nil {
			base.Notifications.Email = *n.Email
		}
		if n.Push != nil {
			base.Notifications.Push = *n.Push
		}
	}
	if err := errs.err(); err != nil {
		return Preferences{}, err
	}
	return base, nil
}

// UserInput is the body of a sign-up request.
type UserInput struct {
	Username     string            `json:"username" example:"jane_doe"`
	Email        string            `json:"email" example:"jane@example.com"`
	Password     string            `json:"password" example:"s3cret!"`
	Name         string            `json:"name" example:"Jane Doe"`
	ProfileImage *string           `json:"profileImage"`
	Preferences  *PreferencesInput `json:"preferences"`
}

// Normalize validates the input and returns the user to persist. The
// password is validated but not copied: hashing is the caller's job.
func (in UserInput) Normalize() (*User, error) {
	var errs ValidationErrors

	u := &User{
		Username:    strings.TrimSpace(in.Username),
		Email:       NormalizeEmail(in.Email),
		Name:        strings.TrimSpace(in.Name),
		IsActive:    true,
		Preferences: DefaultPreferences(),
	}
	validateUsername(&errs, u.Username)
	validateEmail(&errs, u.Email)
	if err := ValidatePassword(in.Password); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	validateMaxLen(&errs, "name", u.Name, MaxNameLength)
	if in.ProfileImage != nil {
		img := strings.TrimSpace(*in.ProfileImage)
		if img != "" {
			validateImageURL(&errs, img)
			u.ProfileImage = &img
		}
	}
	if in.Preferences != nil {
		prefs, err := in.Preferences.Merge(u.Preferences)
		if err != nil {
			errs = append(errs, err.(ValidationErrors)...)
		} else {
			u.Preferences = prefs
		}
	}

	if err := errs.err(); err != nil {
		return nil, err
	}
	return u, nil
}

// ValidatePassword checks a plaintext password before it is hashed.
func ValidatePassword(plain string) error {
	var errs ValidationErrors
	switch {
	case plain == "":
		errs.add("password", "password is required")
	case utf8.RuneCountInString(plain) < MinPasswordLength:
		errs.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	case len(plain) > MaxPasswordBytes:
		errs.add("password", fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	return errs.err()
}

func validateUsername(errs *ValidationErrors, username string) {
	n := utf8.RuneCountInString(username)
	switch {
	case username == "":
		errs.add("username", "username is required")
	case n < MinUsernameLength || n > MaxUsernameLength:
		errs.add("username", fmt.Sprintf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength))
	case !usernamePattern.MatchString(username):
		errs.add("username", "username may only contain letters, digits and underscores")
	}
}

func validateEmail(errs *ValidationErrors, email string) {
	switch {
	case email == "":
		errs.add("email", "email is required")
	case !emailPattern.MatchString(email):
		errs.add("email", "email is not a valid address")
	}
}

func validateImageURL(errs *ValidationErrors, raw string) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.add("profileImage", "profileImage must be an absolute http(s) URL")
	}
}

// ProfilePatch holds the user-editable profile fields.
type ProfilePatch struct {
	Name         Optional[string]           `json:"name"`
	ProfileImage Optional[string]           `json:"profileImage"`
	Preferences  Optional[PreferencesInput] `json:"preferences"`
}

// Changes validates the patch; current supplies the preferences that a
// partial preferences document is merged onto.
func (p ProfilePatch) Changes(current Preferences) (UserChanges, error) {
	var (
		c    UserChanges
		errs ValidationErrors
	)
	if p.Name.Set {
		name := strings.TrimSpace(p.Name.Value)
		validateMaxLen(&errs, "name", name, MaxNameLength)
		c.Name = &name
	}
	if p.ProfileImage.Set {
		img := strings.TrimSpace(p.ProfileImage.Value)
		if img == "" {
			c.ClearProfileImage = true
		} else {
			validateImageURL(&errs, img)
			c.ProfileImage = &img
		}
	}
	if p.Preferences.Set {
		prefs := DefaultPreferences()
		if !p.Preferences.Null {
			merged, err := p.Preferences.Value.Merge(current)
			if err != nil {
				errs = append(errs, err.(ValidationErrors)...)
			}
			prefs = merged
		}
		c.Preferences = &prefs
	}
	if err := errs.err(); err != nil {
		return UserChanges{}, err
	}
	return c, nil
}

// UserChanges is a validated set of assignments for one user. PasswordHash is
// only ever set when a new plaintext was supplied and hashed.
type UserChanges struct {
	Name                   *string
	ProfileImage           *string
	ClearProfileImage      bool
	Preferences            *Preferences
	IsActive               *bool
	IsEmailVerified        *bool
	EmailVerificationToken *string
	PasswordHash           *string
	LastLogin              *time.Time
}

func (c UserChanges) Empty() bool {
	return c.Name == nil && c.ProfileImage == nil && !c.ClearProfileImage && c.Preferences == nil &&
		c.IsActive == nil && c.IsEmailVerified == nil && c.EmailVerificationToken == nil &&
		c.PasswordHash == nil && c.LastLogin == nil
}

func (c UserChanges) Apply(u *User) {
	if c.Name != nil {
		u.Name = *c.Name
	}
	if c.ClearProfileImage {
		u.ProfileImage = nil
	} else if c.ProfileImage != nil {
		img := *c.ProfileImage
		u.ProfileImage = &img
	}
	if c.Preferences != nil {
		u.Preferences = *c.Preferences
	}
	if c.IsActive != nil {
		u.IsActive = *c.IsActive
	}
	if c.IsEmailVerified != nil {
		u.IsEmailVerified = *c.IsEmailVerified
	}
	if c.EmailVerificationToken != nil {
		u.EmailVerificationToken = *c.EmailVerificationToken
	}
	if c.PasswordHash != nil {
		u.Password = *c.PasswordHash
		u.PasswordResetToken = ""
		u.PasswordResetExpires = nil
	}
	if c.LastLogin != nil {
		t := *c.LastLogin
		u.LastLogin = &t
	}
}
