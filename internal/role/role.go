// Package role holds the static catalogue of character roles: alignment,
// category, ability timing and target arity. It is a pure lookup table with
// no mutable state; the game engine treats it as the authoritative source
// for everything derived from a player's role.
package role

// Role identifies one of the closed set of characters in play.
type Role string

// Townsfolk roles.
const (
	Washerwoman   Role = "WASHERWOMAN"
	Librarian     Role = "LIBRARIAN"
	Investigator  Role = "INVESTIGATOR"
	Chef          Role = "CHEF"
	Empath        Role = "EMPATH"
	FortuneTeller Role = "FORTUNE_TELLER"
	Undertaker    Role = "UNDERTAKER"
	Monk          Role = "MONK"
	Ravenkeeper   Role = "RAVENKEEPER"
	Virgin        Role = "VIRGIN"
	Slayer        Role = "SLAYER"
	Soldier       Role = "SOLDIER"
	Mayor         Role = "MAYOR"
)

// Outsider roles.
const (
	Butler  Role = "BUTLER"
	Drunk   Role = "DRUNK"
	Recluse Role = "RECLUSE"
	Saint   Role = "SAINT"
)

// Minion roles.
const (
	Poisoner     Role = "POISONER"
	Spy          Role = "SPY"
	ScarletWoman Role = "SCARLET_WOMAN"
	Baron        Role = "BARON"
)

// Demon role.
const (
	Imp Role = "IMP"
)

// Alignment is the faction a role fights for.
type Alignment string

const (
	Good Alignment = "GOOD"
	Evil Alignment = "EVIL"
)

// Category is the role sub-grouping used by information abilities.
type Category string

const (
	CategoryTownsfolk Category = "TOWNSFOLK"
	CategoryOutsider  Category = "OUTSIDER"
	CategoryMinion    Category = "MINION"
	CategoryDemon     Category = "DEMON"
)

// Timing describes when a role's ability fires.
type Timing string

const (
	TimingSetup     Timing = "SETUP"
	TimingNight     Timing = "NIGHT"
	TimingDay       Timing = "DAY"
	TimingExecution Timing = "EXECUTION"
	TimingPassive   Timing = "PASSIVE"
)

// Definition is the immutable per-role metadata entry.
type Definition struct {
	Role        Role
	Name        string
	Alignment   Alignment
	Category    Category
	Timing      Timing
	Targets     int // number of targets the interactive ability requires; 0 for none
	Description string
}

// definitions is the full registry, keyed by role. The map is never mutated
// after package init.
var definitions = map[Role]Definition{
	Washerwoman: {
		Role: Washerwoman, Name: "Washerwoman", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingSetup, Targets: 0,
		Description: "You start knowing that 1 of 2 players is a particular Townsfolk.",
	},
	Librarian: {
		Role: Librarian, Name: "Librarian", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingSetup, Targets: 0,
		Description: "You start knowing that 1 of 2 players is a particular Outsider, or that none are.",
	},
	Investigator: {
		Role: Investigator, Name: "Investigator", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingSetup, Targets: 0,
		Description: "You start knowing that 1 of 2 players is a particular Minion.",
	},
	Chef: {
		Role: Chef, Name: "Chef", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingSetup, Targets: 0,
		Description: "You start knowing how many pairs of evil players there are.",
	},
	Empath: {
		Role: Empath, Name: "Empath", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingNight, Targets: 0,
		Description: "Each night, you learn how many of your 2 alive neighbours are evil.",
	},
	FortuneTeller: {
		Role: FortuneTeller, Name: "Fortune Teller", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingNight, Targets: 2,
		Description: "Each night, choose 2 players: you learn if either is a Demon. There is a good player that registers as a Demon to you.",
	},
	Undertaker: {
		Role: Undertaker, Name: "Undertaker", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingNight, Targets: 0,
		Description: "Each night*, you learn which character died by execution today.",
	},
	Monk: {
		Role: Monk, Name: "Monk", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingNight, Targets: 1,
		Description: "Each night*, choose a player (not yourself): they are safe from the Demon tonight.",
	},
	Ravenkeeper: {
		Role: Ravenkeeper, Name: "Ravenkeeper", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingNight, Targets: 1,
		Description: "If you die at night, you may choose a player: you learn their character.",
	},
	Virgin: {
		Role: Virgin, Name: "Virgin", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingDay, Targets: 0,
		Description: "The first time you are nominated, if the nominator is a Townsfolk, they are executed immediately.",
	},
	Slayer: {
		Role: Slayer, Name: "Slayer", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingDay, Targets: 1,
		Description: "Once per game, during the day, publicly choose a player: if they are the Demon, they die.",
	},
	Soldier: {
		Role: Soldier, Name: "Soldier", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingPassive, Targets: 0,
		Description: "You are safe from the Demon.",
	},
	Mayor: {
		Role: Mayor, Name: "Mayor", Alignment: Good, Category: CategoryTownsfolk,
		Timing: TimingPassive, Targets: 0,
		Description: "If only 3 players live & no execution occurs, your team wins. If you die at night, another player might die instead.",
	},
	Butler: {
		Role: Butler, Name: "Butler", Alignment: Good, Category: CategoryOutsider,
		Timing: TimingNight, Targets: 1,
		Description: "Each night, choose a player (not yourself): tomorrow, you may only vote if they are voting too.",
	},
	Drunk: {
		Role: Drunk, Name: "Drunk", Alignment: Good, Category: CategoryOutsider,
		Timing: TimingSetup, Targets: 0,
		Description: "You do not know you are the Drunk. You think you are a Townsfolk character, but your ability malfunctions.",
	},
	Recluse: {
		Role: Recluse, Name: "Recluse", Alignment: Good, Category: CategoryOutsider,
		Timing: TimingPassive, Targets: 0,
		Description: "You might register as evil & as a Minion or Demon, even if dead.",
	},
	Saint: {
		Role: Saint, Name: "Saint", Alignment: Good, Category: CategoryOutsider,
		Timing: TimingExecution, Targets: 0,
		Description: "If you die by execution, your team loses.",
	},
	Poisoner: {
		Role: Poisoner, Name: "Poisoner", Alignment: Evil, Category: CategoryMinion,
		Timing: TimingNight, Targets: 1,
		Description: "Each night, choose a player: they are poisoned tonight and tomorrow day.",
	},
	Spy: {
		Role: Spy, Name: "Spy", Alignment: Evil, Category: CategoryMinion,
		Timing: TimingNight, Targets: 0,
		Description: "Each night, you see the Grimoire. You might register as good & as a Townsfolk or Outsider, even if dead.",
	},
	ScarletWoman: {
		Role: ScarletWoman, Name: "Scarlet Woman", Alignment: Evil, Category: CategoryMinion,
		Timing: TimingPassive, Targets: 0,
		Description: "If there are 5 or more players alive & the Demon dies, you become the Demon.",
	},
	Baron: {
		Role: Baron, Name: "Baron", Alignment: Evil, Category: CategoryMinion,
		Timing: TimingSetup, Targets: 0,
		Description: "There are extra Outsiders in play. [+2 Outsiders]",
	},
	Imp: {
		Role: Imp, Name: "Imp", Alignment: Evil, Category: CategoryDemon,
		Timing: TimingNight, Targets: 1,
		Description: "Each night*, choose a player: they die. If you kill yourself this way, a Minion becomes the Imp.",
	},
}

// order lists every role in a stable, category-grouped order. Lookups that
// enumerate the registry iterate this slice rather than the map.
var order = []Role{
	Washerwoman, Librarian, Investigator, Chef, Empath, FortuneTeller,
	Undertaker, Monk, Ravenkeeper, Virgin, Slayer, Soldier, Mayor,
	Butler, Drunk, Recluse, Saint,
	Poisoner, Spy, ScarletWoman, Baron,
	Imp,
}

// Lookup returns the registry entry for a role.
func Lookup(r Role) (Definition, bool) {
	def, ok := definitions[r]
	return def, ok
}

// Known reports whether r names a role in the registry.
func Known(r Role) bool {
	_, ok := definitions[r]
	return ok
}

// AlignmentOf returns the faction a role belongs to. Unknown roles report
// Good with ok=false.
func AlignmentOf(r Role) (Alignment, bool) {
	def, ok := definitions[r]
	if !ok {
		return Good, false
	}
	return def.Alignment, true
}

// CategoryOf returns the role's sub-grouping.
func CategoryOf(r Role) (Category, bool) {
	def, ok := definitions[r]
	if !ok {
		return "", false
	}
	return def.Category, true
}

// TargetsOf returns the number of targets the role's interactive ability
// requires.
func TargetsOf(r Role) int {
	return definitions[r].Targets
}

// All returns every role in registry order.
func All() []Role {
	out := make([]Role, len(order))
	copy(out, order)
	return out
}

// ByCategory returns the roles in a category, in registry order.
func ByCategory(c Category) []Role {
	var out []Role
	for _, r := range order {
		if definitions[r].Category == c {
			out = append(out, r)
		}
	}
	return out
}

// ByAlignment returns the roles on a faction, in registry order.
func ByAlignment(a Alignment) []Role {
	var out []Role
	for _, r := range order {
		if definitions[r].Alignment == a {
			out = append(out, r)
		}
	}
	return out
}

// ByTiming returns the roles whose ability fires at the given timing.
func ByTiming(t Timing) []Role {
	var out []Role
	for _, r := range order {
		if definitions[r].Timing == t {
			out = append(out, r)
		}
	}
	return out
}

// CanActAt reports whether a role's ability fires at the given timing.
func CanActAt(r Role, t Timing) bool {
	return definitions[r].Timing == t
}
