package mappa

import (
	"fmt"
	"strconv"
)

// TrapNames lists the trap types a floor's trap list may contain, indexed
// by trap id.
var TrapNames = []string{
	"UNUSED",
	"MUD_TRAP",
	"STICKY_TRAP",
	"GRIMY_TRAP",
	"SUMMON_TRAP",
	"PITFALL_TRAP",
	"WARP_TRAP",
	"GUST_TRAP",
	"SPIN_TRAP",
	"SLUMBER_TRAP",
	"SLOW_TRAP",
	"SEAL_TRAP",
	"POISON_TRAP",
	"SELFDESTRUCT_TRAP",
	"EXPLOSION_TRAP",
	"PP_ZERO_TRAP",
	"CHESTNUT_TRAP",
	"WONDER_TILE",
	"POKEMON_TRAP",
	"SPIKED_TILE",
	"STEALTH_ROCK",
	"TOXIC_SPIKES",
	"TRIP_TRAP",
	"RANDOM_TRAP",
	"GRUDGE_TRAP",
}

// ParseTrap accepts a trap name or a numeric trap id.
func ParseTrap(s string) (int, error) {
	for i, name := range TrapNames {
		if name == s {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(TrapNames) {
		return n, nil
	}
	return 0, fmt.Errorf("unknown trap %q", s)
}
