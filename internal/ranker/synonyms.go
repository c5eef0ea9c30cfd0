package ranker

import "strings"

// synonymGroups lists interchangeable attribute tokens. Membership is
// bidirectional: a suggestion naming any token in a group wants every token
// in it.
var synonymGroups = [][]string{
	{"gold", "golden", "brass"},
	{"silver", "silvery", "chrome", "steel"},
	{"black", "jet", "onyx"},
	{"white", "ivory", "cream", "offwhite"},
	{"beige", "tan", "camel", "sand"},
	{"brown", "chocolate", "cognac", "chestnut"},
	{"red", "crimson", "scarlet"},
	{"blue", "navy", "cobalt"},
	{"green", "olive", "sage", "forest"},
	{"grey", "gray", "charcoal", "slate"},
	{"pink", "blush", "rose"},
	{"leather", "suede"},
	{"denim", "jean"},
	{"wool", "cashmere", "knit"},
	{"silk", "satin"},
	{"linen", "flax"},
	{"velvet", "velour"},
	{"striped", "stripes", "pinstripe"},
	{"floral", "flower", "botanical"},
	{"plaid", "tartan", "check", "checked"},
	{"structured", "tailored"},
	{"chunky", "oversized", "bulky"},
	{"dainty", "delicate", "fine"},
}

// synonyms maps each token to its full group. Built once at init; lookups
// at scoring time are pure map reads.
var synonyms = buildSynonyms(synonymGroups)

func buildSynonyms(groups [][]string) map[string][]string {
	m := make(map[string][]string)
	for _, group := range groups {
		for _, token := range group {
			m[strings.ToLower(token)] = group
		}
	}
	return m
}
