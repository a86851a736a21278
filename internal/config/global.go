// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform configuration directory when set.
var configDirOverride string

// Reset clears the configuration directory override.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride makes ConfigDir return dir. os.UserHomeDir does not
// follow $HOME on every platform, so tests use this instead of the environment.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
