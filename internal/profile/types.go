package profile

// Profile is what a user has told haven about themselves. It personalises
// chat replies and entry analysis.
type Profile struct {
	Identity      IdentityProfile      `json:"identity"`
	Communication CommunicationProfile `json:"communication"`
	Preferences   PreferencesProfile   `json:"preferences"`
	Interests     []string             `json:"interests,omitempty"`
	Goals         []string             `json:"goals,omitempty"`
	Coping        []string             `json:"coping,omitempty"` // strategies the user says help
}

// IdentityProfile holds how the user wants to be addressed.
type IdentityProfile struct {
	Name     string `json:"name,omitempty"`
	AgeGroup string `json:"ageGroup,omitempty"` // e.g. "13-15", "16-18"
	Pronouns string `json:"pronouns,omitempty"`
}

// CommunicationProfile captures how replies should sound.
type CommunicationProfile struct {
	Tone string `json:"tone,omitempty"` // e.g. "gentle", "upbeat"
}

// PreferencesProfile holds speech and language defaults.
type PreferencesProfile struct {
	Language string `json:"language,omitempty"` // BCP-47, e.g. "en-US"
	Voice    string `json:"voice,omitempty"`
}

// Profile keys as stored in user_profile.
const (
	KeyName      = "identity.name"
	KeyAgeGroup  = "identity.age_group"
	KeyPronouns  = "identity.pronouns"
	KeyTone      = "communication.tone"
	KeyLanguage  = "preferences.language"
	KeyVoice     = "preferences.voice"
	KeyInterests = "interests"
	KeyGoals     = "goals"
	KeyCoping    = "coping"
)

// listKeys hold JSON arrays; every other key holds a plain string.
var listKeys = map[string]bool{
	KeyInterests: true,
	KeyGoals:     true,
	KeyCoping:    true,
}

var stringKeys = map[string]bool{
	KeyName:     true,
	KeyAgeGroup: true,
	KeyPronouns: true,
	KeyTone:     true,
	KeyLanguage: true,
	KeyVoice:    true,
}

// KnownKey reports whether key is a settable profile key.
func KnownKey(key string) bool {
	return listKeys[key] || stringKeys[key]
}

// IsListKey reports whether key holds a list of strings.
func IsListKey(key string) bool {
	return listKeys[key]
}
