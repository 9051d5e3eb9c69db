package seed

// Name parts and places for the demo frontier world. Surnames double as
// household markers: NPCs sharing one are kin and gossip travels their
// edges unconditionally.

var givenNames = []string{
	"Clara", "Emmett", "Silas", "Mabel", "Ruth", "Jonah",
	"Ada", "Wyatt", "Esther", "Cole", "Lenora", "Gideon",
	"Hattie", "Amos", "Pearl", "Boone", "Ida", "Harlan",
	"Josie", "Deacon", "Tilda", "Orin", "Sadie", "Merritt",
}

var familyNames = []string{
	"Calloway", "Mercer", "Holt", "Varn", "Ashford", "Quill",
	"Dunmore", "Reyes", "Whitaker", "Crane", "Bellamy", "Stroud",
}

// settlement is one seeded location and the faction running it.
type settlement struct {
	ID      string
	Name    string
	Faction string
}

var settlements = []settlement{
	{ID: "loc-dust-hollow", Name: "Dust Hollow", Faction: "settler_alliance"},
	{ID: "loc-caldera-crossing", Name: "Caldera Crossing", Faction: "merchant_guild"},
	{ID: "loc-fort-briar", Name: "Fort Briar", Faction: "lawmen"},
}

// demoCharacters are the player characters the sample events are about.
var demoCharacters = []string{"char-dalton-brock", "char-iris-vane"}
