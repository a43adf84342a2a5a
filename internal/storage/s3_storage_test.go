package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(PrefixChats, "OWNER1", "../../etc/passwd")
	assert.True(t, strings.HasPrefix(key, "chats/OWNER1/"))
	assert.True(t, strings.HasSuffix(key, "_passwd"))
	assert.NotContains(t, strings.TrimPrefix(key, "chats/OWNER1/"), "/")

	key = ObjectKey(PrefixDisputes, "D1", `C:\photos\leak photo.JPG`)
	assert.True(t, strings.HasSuffix(key, "_leak_photo.JPG"), key)

	a := ObjectKey(PrefixChats, "X", "a.png")
	b := ObjectKey(PrefixChats, "X", "a.png")
	assert.NotEqual(t, a, b)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "chats/k.png", JoinURL("", "chats/k.png"))
	assert.Equal(t, "https://cdn.example.com/chats/k.png", JoinURL("https://cdn.example.com/", "chats/k.png"))
	assert.Equal(t, "https://cdn.example.com/chats/k.png", JoinURL("https://cdn.example.com", "/chats/k.png"))
}
