package config

// BuiltinConfig holds the device model catalog shipped with the binary.
// User YAML entries with the same name override built-ins field by field.
type BuiltinConfig struct {
	DeviceModels map[string]*DeviceModelConfig
}

var defaultRemoteKeys = []string{
	"UP", "DOWN", "LEFT", "RIGHT", "OK", "BACK", "HOME", "MENU",
	"CHANNEL_UP", "CHANNEL_DOWN", "VOLUME_UP", "VOLUME_DOWN", "MUTE",
	"POWER", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
}

// GetBuiltinConfig returns the built-in device model catalog.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		DeviceModels: map[string]*DeviceModelConfig{
			"android_tv": {
				RemoteKeys:    defaultRemoteKeys,
				ADB:           true,
				Verifications: []string{"check_audio", "check_video", "image_match", "text_match"},
				Captures:      []string{"screenshot", "video"},
			},
			"android_mobile": {
				ADB:           true,
				Verifications: []string{"image_match", "text_match", "element_exists"},
				Captures:      []string{"screenshot"},
			},
			"stb": {
				RemoteKeys:    defaultRemoteKeys,
				Verifications: []string{"check_audio", "check_video", "image_match"},
				Captures:      []string{"screenshot", "video"},
			},
			"web_browser": {
				Web:           true,
				Verifications: []string{"text_match", "element_exists"},
				Captures:      []string{"screenshot"},
			},
			"desktop_pc": {
				Desktop:       true,
				Verifications: []string{"image_match", "text_match"},
				Captures:      []string{"screenshot"},
			},
		},
	}
}

// mergeDeviceModels merges user-defined device models over built-ins.
// A user entry replaces the built-in of the same name wholesale.
func mergeDeviceModels(builtin, user map[string]*DeviceModelConfig) map[string]*DeviceModelConfig {
	merged := make(map[string]*DeviceModelConfig, len(builtin)+len(user))
	for name, cfg := range builtin {
		merged[name] = cfg
	}
	for name, cfg := range user {
		merged[name] = cfg
	}
	return merged
}
