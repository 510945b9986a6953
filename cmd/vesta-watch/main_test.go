package main

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws", websocketURL("http://localhost:8080"))
	assert.Equal(t, "wss://vesta.example/ws", websocketURL("https://vesta.example"))
}

func TestParseFlags(t *testing.T) {
	t.Setenv("VESTA_SERVER", "")
	t.Setenv("VESTA_EMAIL", "")
	t.Setenv("VESTA_PASSWORD", "")

	o, err := parseFlags([]string{"-server", "http://h:1/", "-email", "a@b.test", "-password", "pw"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "http://h:1", o.server)
	assert.Equal(t, "a@b.test", o.email)

	_, err = parseFlags([]string{"-email", "a@b.test"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = parseFlags([]string{"-h"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, flag.ErrHelp)
}
