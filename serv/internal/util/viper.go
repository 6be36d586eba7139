package util

import (
	"strings"

	"github.com/spf13/viper"
)

// SetKeyValue applies an environment override such as
// TDB_CENTRAL_DATABASE=core to the matching config key central.database.
// Keys that do not exist in the loaded config are set as given.
func SetKeyValue(vi *viper.Viper, key, value string) bool {
	k := strings.ToLower(key)
	if i := strings.IndexByte(k, '_'); i != -1 {
		k = k[i+1:]
	}
	if k == "" {
		return false
	}

	for _, known := range vi.AllKeys() {
		if strings.ReplaceAll(known, ".", "_") == k {
			vi.Set(known, value)
			return true
		}
	}

	vi.Set(k, value)
	return false
}
