package sensor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"librarian/internal/census/domain"
)

func ncBox(id, name, slug string, rows string) string {
	return fmt.Sprintf(`
<div class="databox">
  <span class="gamenumber">Game #%s</span>
  <span class="gamename"><a href="/scratch-off/%s/%s">%s</a></span>
  <table class="datatable">
    <thead><tr><th>Value</th><th>Odds</th><th>Total</th><th>Remaining</th></tr></thead>
    <tbody>%s</tbody>
  </table>
</div>`, id, id, slug, name, rows)
}

func ncRow(value, odds, total string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td>%s</td><td>-</td></tr>`, value, odds, total)
}

func ncPage(boxes ...string) string {
	return `<html><body><div id="content">` + strings.Join(boxes, "\n") + `</div></body></html>`
}

func TestNCExtract(t *testing.T) {
	p := &ncProvider{}

	page := ncPage(
		ncBox("996", "Carolina Riches", "carolina-riches",
			ncRow("$1,000,000", "1 in 1,469,394", "2")+
				ncRow("$100", "120", "4,500")),
		ncBox("1024", "Big Cash Payout", "big-cash-payout",
			ncRow("$50,000", "1 in 240,000", "7")),
	)

	games, err := p.Extract(page)
	require.NoError(t, err)
	require.Len(t, games, 2)

	g := games[0]
	require.Equal(t, "996", g.NaturalKey)
	require.Equal(t, "Carolina Riches", g.Attributes.Name)
	require.Equal(t, "carolina-riches", g.Attributes.URLSlug)
	require.Equal(t, []domain.PrizeTier{
		{Value: 1_000_000, Odds: 1_469_394, Remaining: 2, RawValue: "$1,000,000", RawOdds: "1 in 1,469,394", RawTotal: "2"},
		{Value: 100, Odds: 120, Remaining: 4500, RawValue: "$100", RawOdds: "120", RawTotal: "4,500"},
	}, g.Attributes.Prizes)

	require.Equal(t, "1024", games[1].NaturalKey)
	require.Equal(t, int64(350_000), games[1].Attributes.RemainingWealth())
}

func TestNCExtract_DropsMalformedGame(t *testing.T) {
	p := &ncProvider{}

	page := ncPage(
		ncBox("996", "Good Game", "good-game", ncRow("$100", "120", "4,500")),
		ncBox("997", "Bad Game", "bad-game", ncRow("$1oo", "120", "10")), // corrupted value cell
	)

	games, err := p.Extract(page)
	require.NoError(t, err)
	require.Len(t, games, 1, "a game with any malformed tier is dropped whole")
	require.Equal(t, "996", games[0].NaturalKey)
}

func TestNCExtract_SkipsBoxWithoutGameNumber(t *testing.T) {
	p := &ncProvider{}

	page := ncPage(
		`<div class="databox"><span class="gamename"><a href="/scratch-off/1/x">No ID</a></span></div>`,
		ncBox("996", "Good Game", "good-game", ncRow("$100", "120", "4,500")),
	)

	games, err := p.Extract(page)
	require.NoError(t, err)
	require.Len(t, games, 1)
}

func TestNCExtract_SkipsBoxWithoutPrizes(t *testing.T) {
	p := &ncProvider{}

	page := ncPage(
		ncBox("996", "Good Game", "good-game", ncRow("$100", "120", "4,500")),
		`<div class="databox"><span class="gamenumber">997</span></div>`,
	)

	games, err := p.Extract(page)
	require.NoError(t, err)
	require.Len(t, games, 1)
}

func TestNCExtract_NothingParsable(t *testing.T) {
	p := &ncProvider{}
	_, err := p.Extract(`<html><body><p>maintenance page</p></body></html>`)
	require.Error(t, err)
}

func TestNCExtract_MissingNameLinkDefaults(t *testing.T) {
	p := &ncProvider{}

	page := ncPage(`<div class="databox">
		<span class="gamenumber">996</span>
		<table class="datatable"><tbody>` + ncRow("$100", "120", "1") + `</tbody></table>
	</div>`)

	games, err := p.Extract(page)
	require.NoError(t, err)
	require.Equal(t, "Unknown", games[0].Attributes.Name)
	require.Equal(t, "unknown", games[0].Attributes.URLSlug)
}

func TestNCDetailURL(t *testing.T) {
	p := &ncProvider{}
	g := domain.RawGame{NaturalKey: "996", Attributes: domain.Attributes{URLSlug: "carolina-riches"}}
	require.Equal(t, "https://nclottery.com/scratch-off/996/carolina-riches", p.DetailURL(g))
}

func TestNCExtractDetail(t *testing.T) {
	p := &ncProvider{}

	html := `<html><body><div class="stats"><span class="odds value">1 in 3.85</span></div></body></html>`
	require.Equal(t, "3.85", p.ExtractDetail(html))

	require.Equal(t, "", p.ExtractDetail(`<html><body></body></html>`))
}
