package status

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorInfo(t *testing.T) {
	err := NewErrorInfo(http.StatusNotFound, "route not found")
	assert.Equal(t, "not found (404): route not found", err.Error())

	err = NewErrorInfo(http.StatusInternalServerError, "")
	assert.Equal(t, "internal server error (500)", err.Error())
}
