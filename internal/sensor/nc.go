package sensor

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"librarian/internal/census/domain"
	"librarian/internal/log"
)

func init() {
	Register(&ncProvider{})
}

// ncProvider reads the North Carolina Education Lottery's scratch-off
// prizes-remaining page. Each game renders as a div.databox carrying the
// game number, a linked name, and a table of prize tiers.
type ncProvider struct{}

func (*ncProvider) Code() string      { return "NC" }
func (*ncProvider) SafetyFloor() int  { return 40 }
func (*ncProvider) TargetURL() string { return "https://nclottery.com/scratch-off-prizes-remaining" }

func (*ncProvider) DetailURL(g domain.RawGame) string {
	return fmt.Sprintf("https://nclottery.com/scratch-off/%s/%s", g.NaturalKey, g.Attributes.URLSlug)
}

func (p *ncProvider) Extract(htmlContent string) ([]domain.RawGame, error) {
	doc, err := parseDoc(htmlContent)
	if err != nil {
		return nil, fmt.Errorf("nc: parse html: %w", err)
	}

	boxes := findAll(doc, elemWithClass("div", "databox"))
	games := make([]domain.RawGame, 0, len(boxes))
	for _, box := range boxes {
		g, ok := p.extractBox(box)
		if !ok {
			continue
		}
		games = append(games, g)
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("nc: no parsable games in %d boxes", len(boxes))
	}
	return games, nil
}

func (p *ncProvider) extractBox(box *html.Node) (domain.RawGame, bool) {
	var naturalKey string
	if idSpan := findFirst(box, elemWithClass("span", "gamenumber")); idSpan != nil {
		naturalKey = digitsOnly(innerText(idSpan))
	}
	if naturalKey == "" {
		return domain.RawGame{}, false
	}

	name := "Unknown"
	slug := "unknown"
	if nameSpan := findFirst(box, elemWithClass("span", "gamename")); nameSpan != nil {
		if link := findFirst(nameSpan, elem("a")); link != nil {
			name = innerText(link)
			// href is /scratch-off/<id>/<slug>
			if parts := strings.Split(strings.Trim(attr(link, "href"), "/"), "/"); len(parts) >= 3 {
				slug = parts[2]
			}
		}
	}

	prizes, err := p.extractPrizes(box)
	if err != nil {
		log.Warn(log.CatSensor, "dropping unparsable game", "natural_key", naturalKey, "error", err.Error())
		return domain.RawGame{}, false
	}
	if len(prizes) == 0 {
		return domain.RawGame{}, false
	}

	return domain.RawGame{
		NaturalKey: naturalKey,
		Attributes: domain.Attributes{
			Name:    name,
			URLSlug: slug,
			Prizes:  prizes,
		},
	}, true
}

// extractPrizes reads the databox prize table. A single malformed tier
// disqualifies the whole game: partial prize tables would corrupt the
// wealth checksum silently.
func (p *ncProvider) extractPrizes(box *html.Node) ([]domain.PrizeTier, error) {
	table := findFirst(box, elemWithClass("table", "datatable"))
	if table == nil {
		return nil, nil
	}

	var prizes []domain.PrizeTier
	for _, row := range findAll(table, elem("tr")) {
		cols := findAll(row, elem("td"))
		if len(cols) < 4 {
			continue // header or spacer row
		}

		rawValue := innerText(cols[0])
		rawOdds := innerText(cols[1])
		rawTotal := innerText(cols[2])

		value, err := ParseCurrency(rawValue)
		if err != nil {
			return nil, err
		}
		odds, err := ParseOdds(rawOdds)
		if err != nil {
			return nil, err
		}
		remaining, err := ParseCount(rawTotal)
		if err != nil {
			return nil, err
		}

		prizes = append(prizes, domain.PrizeTier{
			Value:     value,
			Odds:      odds,
			Remaining: remaining,
			RawValue:  rawValue,
			RawOdds:   rawOdds,
			RawTotal:  rawTotal,
		})
	}
	return prizes, nil
}

func (*ncProvider) ExtractDetail(htmlContent string) string {
	doc, err := parseDoc(htmlContent)
	if err != nil {
		return ""
	}
	node := findFirst(doc, elemWithClass("", "odds", "value"))
	if node == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(innerText(node), "1 in "))
}
