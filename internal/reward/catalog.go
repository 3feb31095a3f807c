// Package reward implements the eligibility engine that decides whether a
// reward intent should be materialized for a player.
package reward

// CheckKind names the category of eligibility check a catalog entry uses.
type CheckKind string

const (
	CheckFirstGame        CheckKind = "first_game"
	CheckFirstGameCreated CheckKind = "first_game_created"
	CheckWins             CheckKind = "wins"
)

// Entry is one row of the static reward catalog.
type Entry struct {
	Check       CheckKind
	Threshold   int
	BadgeType   string
	Name        string
	Description string
}

// Catalog is the ordered, build-time-fixed set of grantable badges. Order
// matters for the tiered "wins" family: Decide selects the first remaining
// entry in this order whose threshold the player has met.
var Catalog = []Entry{
	{
		Check:       CheckFirstGame,
		BadgeType:   "first_game",
		Name:        "First Move",
		Description: "Played your first game",
	},
	{
		Check:       CheckFirstGameCreated,
		BadgeType:   "first_game_created",
		Name:        "Game Master",
		Description: "Created your first game",
	},
	{
		Check:       CheckWins,
		Threshold:   1,
		BadgeType:   "wins_1",
		Name:        "First Victory",
		Description: "Won your first game",
	},
	{
		Check:       CheckWins,
		Threshold:   10,
		BadgeType:   "wins_10",
		Name:        "Rising Star",
		Description: "Won 10 games",
	},
	{
		Check:       CheckWins,
		Threshold:   50,
		BadgeType:   "wins_50",
		Name:        "Veteran",
		Description: "Won 50 games",
	},
	{
		Check:       CheckWins,
		Threshold:   100,
		BadgeType:   "wins_100",
		Name:        "Grandmaster",
		Description: "Won 100 games",
	},
}

// Find returns the catalog entry for badgeType, if any.
func Find(badgeType string) (Entry, bool) {
	for _, e := range Catalog {
		if e.BadgeType == badgeType {
			return e, true
		}
	}
	return Entry{}, false
}
