// README: Local gazetteer of settlement coordinates; first geocoding tier.
package geocode

import (
	"strings"

	"hitch/internal/types"
)

// localityPrefixes are locality-type words users prepend to settlement names
// ("city of taipei", "township of wufeng"). Lookup retries with these stripped.
var localityPrefixes = []string{
	"city of ",
	"county of ",
	"district of ",
	"township of ",
	"village of ",
}

// localitySuffixes are administrative type words dropped during normalization
// ("taipei city" and "taipei" are the same entry).
var localitySuffixes = []string{
	" city",
	" county",
	" district",
	" township",
	" village",
}

// Normalize folds a place name to its gazetteer key form.
func Normalize(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), " ")
	for _, suf := range localitySuffixes {
		if strings.HasSuffix(key, suf) && len(key) > len(suf) {
			key = strings.TrimSuffix(key, suf)
			break
		}
	}
	return key
}

// Gazetteer is an in-memory table of known settlements.
type Gazetteer struct {
	entries map[string]types.Point
}

// NewGazetteer builds the default settlement table.
func NewGazetteer() *Gazetteer {
	return &Gazetteer{entries: defaultSettlements}
}

// NewGazetteerFromEntries builds a gazetteer from an explicit table.
// Keys must already be normalized.
func NewGazetteerFromEntries(entries map[string]types.Point) *Gazetteer {
	return &Gazetteer{entries: entries}
}

// Lookup resolves a normalized name, retrying with known locality-type
// prefixes stripped. The boolean reports whether the name was found.
func (g *Gazetteer) Lookup(key string) (types.Point, bool) {
	if p, ok := g.entries[key]; ok {
		return p, true
	}
	for _, pre := range localityPrefixes {
		if strings.HasPrefix(key, pre) {
			if p, ok := g.entries[strings.TrimPrefix(key, pre)]; ok {
				return p, true
			}
		}
	}
	return types.Point{}, false
}

// defaultSettlements covers the settlements the community actually travels
// between. Anything missing falls through to the online providers.
var defaultSettlements = map[string]types.Point{
	"taipei":     {Lat: 25.0330, Lng: 121.5654},
	"new taipei": {Lat: 25.0120, Lng: 121.4657},
	"banqiao":    {Lat: 25.0095, Lng: 121.4590},
	"keelung":    {Lat: 25.1276, Lng: 121.7392},
	"taoyuan":    {Lat: 24.9936, Lng: 121.3010},
	"zhongli":    {Lat: 24.9570, Lng: 121.2250},
	"hsinchu":    {Lat: 24.8138, Lng: 120.9675},
	"zhubei":     {Lat: 24.8390, Lng: 121.0040},
	"miaoli":     {Lat: 24.5602, Lng: 120.8214},
	"taichung":   {Lat: 24.1477, Lng: 120.6736},
	"changhua":   {Lat: 24.0518, Lng: 120.5161},
	"nantou":     {Lat: 23.9610, Lng: 120.9719},
	"yunlin":     {Lat: 23.7092, Lng: 120.4313},
	"douliu":     {Lat: 23.7117, Lng: 120.5430},
	"chiayi":     {Lat: 23.4801, Lng: 120.4491},
	"tainan":     {Lat: 22.9999, Lng: 120.2270},
	"kaohsiung":  {Lat: 22.6273, Lng: 120.3014},
	"pingtung":   {Lat: 22.5519, Lng: 120.5487},
	"yilan":      {Lat: 24.7021, Lng: 121.7378},
	"luodong":    {Lat: 24.6770, Lng: 121.7660},
	"hualien":    {Lat: 23.9910, Lng: 121.6111},
	"taitung":    {Lat: 22.7583, Lng: 121.1444},
	"kenting":    {Lat: 21.9480, Lng: 120.7800},
	"sun moon lake": {Lat: 23.8570, Lng: 120.9160},
	"alishan":    {Lat: 23.5100, Lng: 120.8030},
}
