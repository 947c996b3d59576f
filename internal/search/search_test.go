package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePage = `<!doctype html><html><head><script>
var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[{"videoRenderer":{"videoId":"abc123","title":{"runs":[{"text":"First Song"}]},"thumbnail":{"thumbnails":[{"url":"https://i.ytimg.com/abc123.jpg"}]},"ownerText":{"runs":[{"text":"Some Artist"}]},"lengthText":{"simpleText":"3:42"}}},{"adSlotRenderer":{}},{"videoRenderer":{"videoId":"def456","title":{"runs":[{"text":"Second Song"}]},"ownerText":{"runs":[{"text":"Another Artist"}]},"lengthText":{"simpleText":"4:10"}}}]}}]}}}}};
</script></head><body></body></html>`

func TestParseResults_ExtractsVideoEntries(t *testing.T) {
	tracks, err := parseResults([]byte(fixturePage))
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, "abc123", tracks[0].ID)
	assert.Equal(t, "First Song", tracks[0].Title)
	assert.Equal(t, "Some Artist", tracks[0].Author)
	assert.Equal(t, "https://i.ytimg.com/abc123.jpg", tracks[0].Thumbnail)
	assert.Equal(t, "3:42", tracks[0].Duration)

	// Non-video entries are skipped, optional fields stay empty.
	assert.Equal(t, "def456", tracks[1].ID)
	assert.Empty(t, tracks[1].Thumbnail)
}

func TestParseResults_NoBlob(t *testing.T) {
	_, err := parseResults([]byte("<html><body>nothing here</body></html>"))
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestParseResults_CapsAtFive(t *testing.T) {
	head := `var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[`
	entry := `{"videoRenderer":{"videoId":"vid","title":{"runs":[{"text":"t"}]}}}`
	page := head
	for i := 0; i < 8; i++ {
		if i > 0 {
			page += ","
		}
		page += entry
	}
	page += `]}}]}}}}};`

	tracks, err := parseResults([]byte(page))
	require.NoError(t, err)
	assert.Len(t, tracks, 5)
}
