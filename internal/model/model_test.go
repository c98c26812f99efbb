package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVStreamKeyFormat(t *testing.T) {
	assert.Equal(t, "7_cam1", VStreamKey(7, "cam1"))
}

func TestVStreamKeyMatchesInstanceMethod(t *testing.T) {
	v := VStream{IDGroup: 12, VStreamExt: "front-door"}
	assert.Equal(t, "12_front-door", v.Key())
	assert.Equal(t, VStreamKey(12, "front-door"), v.Key())
}
