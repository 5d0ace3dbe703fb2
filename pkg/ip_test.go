package pkg

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUserIP(t *testing.T) {
	req, err := http.NewRequest("GET", "/", nil)
	require.NoError(t, err)

	req.RemoteAddr = "162.12.55.121:8080"
	ip, err := ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "162.12.55.121", ip)

	req.Header.Set("X-Real-Ip", "88.22.11.5")
	ip, err = ReadUserIP(req)
	require.NoError(t, err)
	assert.Equal(t, "88.22.11.5", ip)

	req.Header.Set("X-Real-Ip", "not-an-ip")
	_, err = ReadUserIP(req)
	assert.Error(t, err)
}
