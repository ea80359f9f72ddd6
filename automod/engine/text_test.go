package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("foo", normalizeText("ｆｏｏ"))
	assert.Equal("fooe", normalizeText("fóóé"))
	assert.Equal("plain", normalizeText("plain"))
}

func TestExtractLinks(t *testing.T) {
	assert := assert.New(t)

	links := extractLinks("check https://WWW.Example.com/a#frag and http://evil.test/x", true)
	assert.Equal(2, len(links))
	assert.Equal("example.com", links[0].Domain)
	assert.Equal("evil.test", links[1].Domain)

	assert.Empty(extractLinks("go to example.com now", true))
	bare := extractLinks("go to example.com/path now", false)
	assert.Equal(1, len(bare))
	assert.Equal("example.com", bare[0].Domain)

	// explicit links are not counted again as bare domains
	assert.Equal(1, len(extractLinks("https://example.com", false)))
}

func TestExtractInviteCodes(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{"abc123", "zeppelin"}, extractInviteCodes("join discord.gg/abc123 or https://discord.com/invite/zeppelin discord.gg/abc123"))
	assert.Empty(extractInviteCodes("no invites here"))
}

func TestDomainInList(t *testing.T) {
	assert := assert.New(t)
	list := []string{"example.com", "www.other.org"}
	assert.True(domainInList("example.com", list, false))
	assert.True(domainInList("cdn.example.com", list, true))
	assert.False(domainInList("cdn.example.com", list, false))
	assert.True(domainInList("other.org", list, false))
	assert.False(domainInList("notexample.com", list, true))
}

func TestTextCounts(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(5, countCharacters("héllo"))
	assert.Equal(3, countEmoji("hi 😀😀 <:pepe:123456789012345678>"))
	assert.Equal(0, countEmoji("no emoji"))
	assert.Equal(3, countLines("a\nb\nc"))
	assert.Equal(0, countLines(""))
	assert.Equal("png", fileExtension("Image.PNG"))
	assert.Equal("", fileExtension("README"))
}
