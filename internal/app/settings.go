package app

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/azyu/storyloom/pkg/types"
)

var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidSetting = errors.New("invalid setting value")
)

// SettingKeys lists the keys SetSetting accepts, in display order.
var SettingKeys = []string{
	"theme",
	"editor_font",
	"font_size",
	"line_spacing",
	"paragraph_spacing",
	"first_line_indent",
	"ai_creativity",
}

var settingChoices = map[string][]string{
	"theme":         {"dark", "light"},
	"editor_font":   {"serif", "sans", "mono"},
	"ai_creativity": {"conservative", "balanced", "creative"},
}

// SetSetting parses value for key and installs the updated settings.
// Settings never enter undo history; autosave persists them.
func (a *App) SetSetting(key, value string) error {
	apply, err := parseSetting(key, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	a.State.UpdateSettings(apply)
	a.Log.WithField("setting", key).Debug("settings updated")
	return nil
}

func parseSetting(key, value string) (func(*types.Settings), error) {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s %s", ErrInvalidSetting, key, reason)
	}

	if choices, ok := settingChoices[key]; ok {
		if !slices.Contains(choices, value) {
			return nil, invalid("must be one of " + strings.Join(choices, ", "))
		}
		switch key {
		case "theme":
			return func(s *types.Settings) { s.Theme = value }, nil
		case "editor_font":
			return func(s *types.Settings) { s.EditorFont = value }, nil
		default:
			return func(s *types.Settings) { s.AICreativity = value }, nil
		}
	}

	switch key {
	case "font_size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 8 || n > 72 {
			return nil, invalid("must be a whole number between 8 and 72")
		}
		return func(s *types.Settings) { s.FontSize = n }, nil
	case "line_spacing", "paragraph_spacing":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 4 {
			return nil, invalid("must be a number between 0 and 4")
		}
		if key == "line_spacing" {
			return func(s *types.Settings) { s.LineSpacing = f }, nil
		}
		return func(s *types.Settings) { s.ParagraphSpacing = f }, nil
	case "first_line_indent":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, invalid("must be true or false")
		}
		return func(s *types.Settings) { s.FirstLineIndent = b }, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
}
