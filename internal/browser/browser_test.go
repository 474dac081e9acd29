package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenshotOnErrorPassesErrorThrough(t *testing.T) {
	sentinel := errors.New("boom")
	assert.Same(t, sentinel, ScreenshotOnError(nil, "prefix", sentinel))
}

func TestScreenshotOnErrorNilErrorStaysNil(t *testing.T) {
	assert.NoError(t, ScreenshotOnError(nil, "prefix", nil))
}
