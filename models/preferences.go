package models

// Theme names, in the order the settings panel lists them
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeOcean  = "ocean"
	ThemeForest = "forest"
	ThemeSunset = "sunset"
)

// Themes are the color palettes a user can pick
var Themes = []string{ThemeLight, ThemeDark, ThemeOcean, ThemeForest, ThemeSunset}

// Languages are the display languages a user can pick
var Languages = []string{"vi", "en"}

// Preferences are the per-device cosmetic settings
type Preferences struct {
	Language string `json:"language"`
	Theme    string `json:"theme"`
}

// IsTheme reports whether name is a known palette
func IsTheme(name string) bool {
	return contains(Themes, name)
}

// IsLanguage reports whether code is a supported display language
func IsLanguage(code string) bool {
	return contains(Languages, code)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
