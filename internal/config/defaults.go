package config

var defaultStations = []Station{
	{ID: "snotel-791", Name: "SNOTEL 791 - Stevens Pass", Triplet: "791:WA:SNTL", Elevation: 3940, Type: "base"},
}

var defaultRoutes = []Route{
	{
		ID:          "redmond-stevens-eb",
		Name:        "Redmond to Stevens Pass",
		Origin:      "Redmond, WA 98052",
		Destination: "Stevens Pass, WA 98826",
		Waypoints: []Waypoint{
			{Location: "Monroe, WA", Name: "Monroe"},
			{Location: "Sultan, WA", Name: "Sultan"},
			{Location: "Skykomish, WA", Name: "Skykomish"},
		},
	},
	{
		ID:          "stevens-redmond-wb",
		Name:        "Stevens Pass to Redmond",
		Origin:      "Stevens Pass, WA 98826",
		Destination: "Redmond, WA 98052",
		Waypoints: []Waypoint{
			{Location: "Skykomish, WA", Name: "Skykomish"},
			{Location: "Sultan, WA", Name: "Sultan"},
			{Location: "Monroe, WA", Name: "Monroe"},
		},
	},
	{
		ID:          "redmond-snoqualmie-eb",
		Name:        "Redmond to Snoqualmie Pass",
		Origin:      "Redmond, WA 98052",
		Destination: "Snoqualmie Pass, WA",
	},
	{
		ID:          "snoqualmie-redmond-wb",
		Name:        "Snoqualmie Pass to Redmond",
		Origin:      "Snoqualmie Pass, WA",
		Destination: "Redmond, WA 98052",
	},
	{
		ID:          "redmond-mtbaker-eb",
		Name:        "Redmond to Mt Baker",
		Origin:      "Redmond, WA 98052",
		Destination: "Mt Baker Ski Area, WA",
		Waypoints: []Waypoint{
			{Location: "Everett, WA", Name: "Everett"},
			{Location: "Burlington, WA", Name: "Burlington"},
			{Location: "Glacier, WA", Name: "Glacier"},
		},
	},
	{
		ID:          "mtbaker-redmond-wb",
		Name:        "Mt Baker to Redmond",
		Origin:      "Mt Baker Ski Area, WA",
		Destination: "Redmond, WA 98052",
		Waypoints: []Waypoint{
			{Location: "Glacier, WA", Name: "Glacier"},
			{Location: "Burlington, WA", Name: "Burlington"},
			{Location: "Everett, WA", Name: "Everett"},
		},
	},
	// Duvall routes are archived: no longer polled, history kept.
	{ID: "duvall-stevens-eb", Name: "Duvall to Stevens Pass", Origin: "Duvall, WA 98019", Destination: "Stevens Pass Ski Area, WA"},
	{ID: "stevens-duvall-wb", Name: "Stevens Pass to Duvall", Origin: "Stevens Pass Ski Area, WA", Destination: "Duvall, WA 98019"},
	{ID: "duvall-snoqualmie-eb", Name: "Duvall to Snoqualmie Pass", Origin: "Duvall, WA 98019", Destination: "Snoqualmie Pass, WA"},
}

var archivedRoutes = []string{
	"duvall-stevens-eb",
	"stevens-duvall-wb",
	"duvall-snoqualmie-eb",
}
