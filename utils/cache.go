package utils

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// PreferenceCache keeps recently read notification preferences out of the
// fan-out hot path. Entries are dropped on every preference update.
var PreferenceCache = cache.New(5*time.Minute, 30*time.Second)

// MembershipCache caches room membership lookups for the websocket handlers.
var MembershipCache = cache.New(time.Minute, 30*time.Second)
