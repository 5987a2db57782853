package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	orig := Commit
	defer func() { Commit = orig }()

	Commit = ""
	assert.Equal(t, Version, Full())

	Commit = "4f1c2d9e8b7a"
	assert.Equal(t, Version+"+4f1c2d9", Full())

	Commit = "abc"
	assert.Equal(t, Version+"+abc", Full())
}

func TestCurrent(t *testing.T) {
	info := Current()
	assert.Equal(t, Name, info.Service)
	assert.Equal(t, Version, info.Version)
}
