package hazmat

import (
	"sort"
	"strings"
)

// Material identifies a regulated substance by UN number.
type Material struct {
	UNNumber string `json:"un_number"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	GuideNo  int    `json:"guide_no"`
}

// Guide is one orange-section page of the Emergency Response Guidebook.
// Distances are in meters; EvacuationMeters is zero when the guide calls
// for isolation only.
type Guide struct {
	Number            int    `json:"number"`
	Title             string `json:"title"`
	IsolationMeters   int    `json:"isolation_meters"`
	EvacuationMeters  int    `json:"evacuation_meters,omitempty"`
	PotentialHazards  string `json:"potential_hazards"`
	PublicSafety      string `json:"public_safety"`
	EmergencyResponse string `json:"emergency_response"`
}

// Static ERG excerpt covering the commodities the platform hauls. A full
// deployment would ingest the published guidebook; the excerpt keeps the
// lookups dependency-free.
var materials = map[string]Material{
	"1203": {UNNumber: "1203", Name: "Gasoline", Class: "3", GuideNo: 128},
	"1993": {UNNumber: "1993", Name: "Flammable liquid, n.o.s.", Class: "3", GuideNo: 128},
	"1267": {UNNumber: "1267", Name: "Petroleum crude oil", Class: "3", GuideNo: 128},
	"1005": {UNNumber: "1005", Name: "Ammonia, anhydrous", Class: "2.3", GuideNo: 125},
	"1830": {UNNumber: "1830", Name: "Sulfuric acid", Class: "8", GuideNo: 137},
	"3082": {UNNumber: "3082", Name: "Environmentally hazardous substance, liquid, n.o.s.", Class: "9", GuideNo: 171},
}

var guides = map[int]Guide{
	128: {
		Number:          128,
		Title:           "FLAMMABLE LIQUIDS (Non-Polar / Water-Immiscible)",
		IsolationMeters: 50,
		PotentialHazards: "HIGHLY FLAMMABLE: will be easily ignited by heat, sparks or flames. " +
			"Vapors may form explosive mixtures with air. " +
			"Vapors are heavier than air and may spread along ground.",
		PublicSafety: "CALL EMERGENCY RESPONSE TELEPHONE NUMBER. " +
			"Isolate spill or leak area immediately for at least 50 meters (150 feet) in all directions.",
		EmergencyResponse: "FIRE: Dry chemical, CO2, water spray or regular foam. " +
			"SPILL: Eliminate all ignition sources. " +
			"Absorb with earth, sand or other non-combustible material.",
	},
	125: {
		Number:           125,
		Title:            "GASES - TOXIC and/or CORROSIVE",
		IsolationMeters:  100,
		EvacuationMeters: 500,
		PotentialHazards: "TOXIC; may be fatal if inhaled or absorbed through skin. " +
			"Contact with gas or liquefied gas may cause burns, severe injury and/or frostbite.",
		PublicSafety: "EVACUATE immediately in all directions for 500 meters (1/3 mile). " +
			"Stay upwind. Many gases are heavier than air and will collect in low areas.",
		EmergencyResponse: "FIRE: Do not extinguish fire unless flow can be stopped. " +
			"Use water spray to keep fire-exposed containers cool.",
	},
	137: {
		Number:          137,
		Title:           "SUBSTANCES - WATER-REACTIVE - CORROSIVE",
		IsolationMeters: 50,
		PotentialHazards: "CORROSIVE and/or TOXIC; inhalation, ingestion or contact with vapors or substance " +
			"may cause severe injury, burns or death. " +
			"Reaction with water may generate much heat and increase the concentration of fumes in air.",
		PublicSafety: "Isolate spill or leak area in all directions for at least 50 meters (150 feet). " +
			"Stay upwind. Keep out of low areas.",
		EmergencyResponse: "FIRE: Do not get water inside containers. Small fires: dry chemical or CO2. " +
			"SPILL: Do not touch damaged containers or spilled material. " +
			"Use water spray to reduce vapors; do not put water directly on leak or spill area.",
	},
	171: {
		Number:          171,
		Title:           "SUBSTANCES (LOW TO MODERATE HAZARD)",
		IsolationMeters: 50,
		PotentialHazards: "Some may burn but none ignite readily. " +
			"Containers may explode when heated. " +
			"Inhalation of material may be harmful; contact may cause burns to skin and eyes.",
		PublicSafety: "Isolate spill or leak area in all directions for at least 50 meters (150 feet) " +
			"for liquids and 25 meters (75 feet) for solids. Keep unauthorized personnel away.",
		EmergencyResponse: "FIRE: Small fires: water spray, dry chemical or CO2. " +
			"SPILL: Do not touch or walk through spilled material. " +
			"Prevent entry into waterways, sewers, basements or confined areas.",
	},
}

// Lookup resolves a UN number, with or without the "UN" prefix, to its
// material record.
func Lookup(un string) (Material, bool) {
	m, ok := materials[normalizeUN(un)]
	return m, ok
}

// GuideByNumber returns the orange-section page for a guide number.
func GuideByNumber(no int) (Guide, bool) {
	g, ok := guides[no]
	return g, ok
}

// Materials lists the dataset ordered by UN number.
func Materials() []Material {
	out := make([]Material, 0, len(materials))
	for _, m := range materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UNNumber < out[j].UNNumber })
	return out
}

func normalizeUN(un string) string {
	un = strings.ToUpper(strings.TrimSpace(un))
	return strings.TrimSpace(strings.TrimPrefix(un, "UN"))
}
