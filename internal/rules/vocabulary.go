package rules

// vocabulary is the fixed set of domain terms the inverted index is built
// over. Terms are matched by substring containment on lowercased text.
var vocabulary = []string{
	"draw",
	"discard",
	"sacrifice",
	"damage",
	"stack",
	"combat",
	"trample",
	"flying",
	"deathtouch",
	"lifelink",
	"first strike",
	"double strike",
	"vigilance",
	"haste",
	"menace",
	"hexproof",
	"indestructible",
	"reach",
	"ward",
	"protection",
	"counter",
	"token",
	"copy",
	"exile",
	"graveyard",
	"library",
	"hand",
	"battlefield",
	"mana",
	"cost",
	"target",
	"block",
	"attack",
	"priority",
	"trigger",
	"activated",
	"static",
	"replacement",
	"prevent",
	"layer",
	"timestamp",
	"control",
	"owner",
	"tap",
	"upkeep",
	"cleanup",
	"end step",
	"legendary",
	"planeswalker",
	"loyalty",
	"creature",
	"enchantment",
	"artifact",
	"instant",
	"sorcery",
	"land",
	"commander",
	"poison",
	"state-based",
	"toughness",
	"power",
	"cast",
	"spell",
	"resolve",
	"mulligan",
}
